package opt

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultSimplexEvaluations caps the statistic evaluations of one simplex run.
	DefaultSimplexEvaluations = 10000

	simplexDefaultTol = 1e-8
	simplexStepFrac   = 0.1
)

// NMSimplex is a Nelder-Mead backend built on gonum/optimize. The search runs over
// the free parameters, scaled so the initial simplex spans a tenth of each
// parameter's range (or of its magnitude when unbounded).
type NMSimplex struct {
	maxEvals int
}

// NewNMSimplex creates the Nelder-Mead backend.
func NewNMSimplex() *NMSimplex {
	return &NMSimplex{maxEvals: DefaultSimplexEvaluations}
}

func (nm *NMSimplex) Name() string { return NameNMSimplex }
func (nm *NMSimplex) Kind() Kind   { return DerivativeFree }

// Minimize runs the simplex search from params.
func (nm *NMSimplex) Minimize(params []float64, limits Limits, model Model, s Settings) (Result, error) {
	result := Result{Backend: nm.Name()}

	if err := checkVector(params, limits, model); err != nil {
		result.Status = inputStatus(err)
		return result, err
	}

	limits.ClampVector(params)
	fs := newFreeSpace(params, limits)
	n := fs.dim()
	result.NFree = n
	if n == 0 {
		result.Status = StatusInvalidInput
		return result, ErrNoFreeParameters
	}

	origin := fs.reduce(params)
	scale := simplexScale(origin, fs.free, limits)
	x := make([]float64, n)
	toParams := func(z []float64) []float64 {
		for k := range z {
			x[k] = origin[k] + scale[k]*z[k]
		}
		return fs.expand(x)
	}

	result.InitialStatistic = model.Evaluate(params)

	tol := s.Tolerance
	if tol <= 0 {
		tol = simplexDefaultTol
	}
	settings := &optimize.Settings{
		FuncEvaluations: nm.maxEvals,
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   tol,
			Iterations: max(50, 10*n),
		},
	}
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			v := model.Evaluate(toParams(z))
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
	}

	res, err := optimize.Minimize(problem, make([]float64, n), settings, &optimize.NelderMead{SimplexSize: 1})
	if res == nil {
		if s.Verbosity >= 0 {
			slog.Error("Simplex fit failed", "error", err)
		}
		result.Status = StatusFailure
		return result, nil
	}

	copy(params, toParams(res.X))
	result.FinalStatistic = res.F
	result.Iterations = res.MajorIterations
	result.Evaluations = res.FuncEvaluations + 1
	result.Status = simplexStatus(res.Status)
	if err != nil && result.Status.OK() && s.Verbosity >= 0 {
		slog.Warn("Simplex fit reported an error", "error", err)
	}

	if s.Verbosity >= 0 {
		slog.Info("Simplex fit complete",
			"status", result.Status.String(),
			"iterations", result.Iterations,
			"evaluations", result.Evaluations,
			"initial_statistic", result.InitialStatistic,
			"final_statistic", result.FinalStatistic,
		)
	}
	return result, nil
}

// simplexScale picks the per-parameter step that maps a unit move in the search
// space onto the parameter.
func simplexScale(origin []float64, free []int, limits Limits) []float64 {
	scale := make([]float64, len(origin))
	for k, i := range free {
		var step float64
		if limits != nil && limits[i].HasLower && limits[i].HasUpper && limits[i].Upper > limits[i].Lower {
			step = simplexStepFrac * (limits[i].Upper - limits[i].Lower)
		} else if origin[k] != 0 {
			step = simplexStepFrac * math.Abs(origin[k])
		} else {
			step = simplexStepFrac
		}
		scale[k] = step
	}
	return scale
}

func simplexStatus(s optimize.Status) Status {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.FunctionThreshold, optimize.MethodConverge:
		return StatusStatisticConverged
	case optimize.StepConvergence:
		return StatusParamsConverged
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return StatusMaxIterations
	default:
		return StatusFailure
	}
}
