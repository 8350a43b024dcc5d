package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultLevMarIterations matches the classic MINPACK/mpfit iteration cap.
	DefaultLevMarIterations = 200

	lmInitialLambda = 1e-3
	lmMaxLambda     = 1e12
	lmMinLambda     = 1e-12
	lmDefaultTol    = 1e-10
)

var lmStep = math.Sqrt(2.220446049250313e-16)

// LevMar is a bounded Levenberg-Marquardt least-squares backend over the free
// parameters of a DeviatesModel. Bounds are enforced by pegging trial steps to
// the nearest limit; a nil limits table leaves every parameter unbounded.
type LevMar struct {
	maxIter int
}

// NewLevMar creates the least-squares backend with the default iteration cap.
func NewLevMar() *LevMar {
	return &LevMar{maxIter: DefaultLevMarIterations}
}

func (lm *LevMar) Name() string { return NameLevMar }
func (lm *LevMar) Kind() Kind   { return Gradient }

// Minimize runs Levenberg-Marquardt from params.
func (lm *LevMar) Minimize(params []float64, limits Limits, model Model, s Settings) (Result, error) {
	result := Result{Backend: lm.Name()}

	if err := checkVector(params, limits, model); err != nil {
		result.Status = inputStatus(err)
		return result, err
	}
	dm, ok := model.(DeviatesModel)
	if !ok {
		result.Status = StatusInvalidInput
		return result, ErrDeviatesRequired
	}

	limits.ClampVector(params)
	fs := newFreeSpace(params, limits)
	n := fs.dim()
	m := model.ValidSampleCount()
	result.NFree = n
	if n == 0 {
		result.Status = StatusInvalidInput
		return result, ErrNoFreeParameters
	}
	if m < n {
		result.Status = StatusInvalidInput
		return result, fmt.Errorf("%w: %d samples for %d free parameters", ErrDimensionMismatch, m, n)
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = lmDefaultTol
	}
	maxIter := lm.maxIter
	if s.MaxIterations > 0 {
		maxIter = s.MaxIterations
	}

	x := fs.reduce(params)
	xTrial := make([]float64, n)
	r := make([]float64, m)
	rTrial := make([]float64, m)
	jac := mat.NewDense(m, n, nil)

	dm.Deviates(fs.expand(x), r)
	chi := sumSquares(r)
	evals := 1
	result.InitialStatistic = chi

	lambda := lmInitialLambda
	status := StatusMaxIterations
	iter := 0

	for iter < maxIter && finite(chi) {
		iter++
		if chi == 0 {
			status = StatusStatisticConverged
			break
		}

		evals += lm.jacobian(dm, fs, x, r, jac)

		var alpha mat.Dense
		alpha.Mul(jac.T(), jac)
		beta := mat.NewVecDense(n, nil)
		beta.MulVec(jac.T(), mat.NewVecDense(m, r))

		accepted := false
		var reduction, stepNorm float64
		for lambda <= lmMaxLambda {
			damped := mat.DenseCopyOf(&alpha)
			for i := 0; i < n; i++ {
				d := alpha.At(i, i)
				if d == 0 {
					d = 1
				}
				damped.Set(i, i, d*(1+lambda))
			}

			var delta mat.VecDense
			if err := delta.SolveVec(damped, beta); err != nil && !isCondition(err) {
				lambda *= 10
				continue
			}

			for i := 0; i < n; i++ {
				xTrial[i] = x[i] - delta.AtVec(i)
			}
			full := fs.expand(xTrial)
			dm.Deviates(full, rTrial)
			evals++
			chiTrial := sumSquares(rTrial)

			if !math.IsNaN(chiTrial) && chiTrial < chi {
				clamped := fs.reduce(full)
				stepNorm = distance(x, clamped)
				copy(x, clamped)
				r, rTrial = rTrial, r
				reduction = (chi - chiTrial) / chi
				chi = chiTrial
				lambda = math.Max(lambda/10, lmMinLambda)
				accepted = true
				break
			}
			lambda *= 10
		}

		if s.Verbosity > 0 {
			slog.Debug("LM iteration", "iteration", iter, "statistic", chi, "lambda", lambda, "accepted", accepted)
		}

		if !accepted {
			// No damping level reduces the statistic any further.
			status = StatusStatisticConverged
			break
		}

		fConv := reduction <= tol
		xConv := stepNorm <= tol*(norm(x)+tol)
		if fConv && xConv {
			status = StatusBothConverged
			break
		}
		if fConv {
			status = StatusStatisticConverged
			break
		}
		if xConv {
			status = StatusParamsConverged
			break
		}
	}

	fs.store(params, x)
	if finite(chi) {
		evals += lm.jacobian(dm, fs, x, r, jac)
		result.ParamErrors = lm.paramErrors(jac, fs, len(params))
	} else {
		status = StatusFailure
		result.ParamErrors = make([]float64, len(params))
	}

	result.Status = status
	result.Iterations = iter
	result.Evaluations = evals
	result.FinalStatistic = chi

	if s.Verbosity >= 0 {
		slog.Info("LM fit complete",
			"status", status.String(),
			"iterations", iter,
			"evaluations", evals,
			"initial_statistic", result.InitialStatistic,
			"final_statistic", chi,
		)
	}
	return result, nil
}

// jacobian fills jac with forward-difference derivatives of the deviates at x and
// returns the number of deviate evaluations used. Steps that would leave an upper
// bound are taken backwards instead.
func (lm *LevMar) jacobian(dm DeviatesModel, fs *freeSpace, x, r []float64, jac *mat.Dense) int {
	m, n := jac.Dims()
	xh := make([]float64, n)
	rh := make([]float64, m)
	copy(xh, x)

	for j := 0; j < n; j++ {
		h := lmStep * math.Abs(x[j])
		if h == 0 {
			h = lmStep
		}
		i := fs.free[j]
		if lim := fs.limits; lim != nil && lim[i].HasUpper && x[j]+h > lim[i].Upper {
			h = -h
		}

		xh[j] = x[j] + h
		dm.Deviates(fs.expand(xh), rh)
		xh[j] = x[j]

		for k := 0; k < m; k++ {
			jac.Set(k, j, (rh[k]-r[k])/h)
		}
	}
	// leave the working vector at x
	fs.expand(x)
	return n
}

// paramErrors returns sqrt(diag((JᵀJ)⁻¹)) mapped onto the full parameter vector.
func (lm *LevMar) paramErrors(jac *mat.Dense, fs *freeSpace, nParams int) []float64 {
	errs := make([]float64, nParams)

	var alpha, cov mat.Dense
	alpha.Mul(jac.T(), jac)
	if err := cov.Inverse(&alpha); err != nil && !isCondition(err) {
		return errs
	}
	for k, i := range fs.free {
		v := cov.At(k, k)
		if v > 0 && !math.IsInf(v, 0) {
			errs[i] = math.Sqrt(v)
		}
	}
	return errs
}

func isCondition(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

func sumSquares(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(sumSquares(v))
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
