package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

const (
	// DefaultMayflyIterations is the iteration budget of the mayfly backend.
	DefaultMayflyIterations = 500
	// DefaultMayflyPopulation is the mayfly population; mayfly v0.1.0 needs at least 20.
	DefaultMayflyPopulation = 30
	minMayflyPopulation     = 20
)

// MayflyAdapter wraps the external Mayfly library as a derivative-free backend.
// The library takes a single scalar bound pair, so free parameters are searched
// in the unit cube and mapped onto their own limits.
type MayflyAdapter struct {
	maxIters int
	popSize  int
}

// NewMayfly creates a new Mayfly backend.
func NewMayfly(maxIters, popSize int) *MayflyAdapter {
	if popSize < minMayflyPopulation {
		popSize = minMayflyPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
	}
}

func (m *MayflyAdapter) Name() string { return NameMayfly }
func (m *MayflyAdapter) Kind() Kind   { return DerivativeFree }

func (m *MayflyAdapter) CheckLimits(params []float64, limits Limits) error {
	_, _, _, err := DeriveBounds(params, limits)
	return err
}

// Minimize runs the mayfly search. Like DE it needs both bounds on every free parameter.
func (m *MayflyAdapter) Minimize(params []float64, limits Limits, model Model, s Settings) (Result, error) {
	result := Result{Backend: m.Name()}

	if err := checkVector(params, limits, model); err != nil {
		result.Status = inputStatus(err)
		return result, err
	}
	lower, upper, nFree, err := DeriveBounds(params, limits)
	if err != nil {
		if s.Verbosity >= 0 {
			slog.Error("Parameter limits must be supplied for all free parameters when using mayfly", "error", err)
		}
		result.Status = StatusInvalidLimits
		return result, err
	}
	result.NFree = nFree
	if nFree == 0 {
		result.Status = StatusInvalidInput
		return result, ErrNoFreeParameters
	}

	limits.ClampVector(params)
	result.InitialStatistic = model.Evaluate(params)

	free := limits.freeIndices(len(params))
	full := make([]float64, len(params))
	copy(full, params)
	fromUnit := func(u []float64) []float64 {
		for k, i := range free {
			v := u[k]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			full[i] = lower[i] + v*(upper[i]-lower[i])
		}
		return full
	}

	maxIters := m.maxIters
	if s.MaxIterations > 0 {
		maxIters = s.MaxIterations
	}
	rng := s.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	evals := 0
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		evals++
		return model.Evaluate(fromUnit(u))
	}
	config.ProblemSize = nFree
	config.MaxIterations = maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rng

	res, err := mayfly.Optimize(config)
	if err != nil {
		if s.Verbosity >= 0 {
			slog.Error("Mayfly fit failed", "error", err)
		}
		result.Status = StatusFailure
		result.Evaluations = evals + 1
		return result, nil
	}

	result.FinalStatistic = res.GlobalBest.Cost
	result.Iterations = maxIters
	result.Evaluations = evals + 1
	if !finite(res.GlobalBest.Cost) {
		if s.Verbosity >= 0 {
			slog.Error("Mayfly fit found no finite statistic")
		}
		result.Status = StatusFailure
		return result, nil
	}

	copy(params, fromUnit(res.GlobalBest.Position))
	result.Status = StatusMaxIterations

	if s.Verbosity >= 0 {
		slog.Info("Mayfly fit complete",
			"status", result.Status.String(),
			"iterations", maxIters,
			"population", m.popSize,
			"initial_statistic", result.InitialStatistic,
			"final_statistic", result.FinalStatistic,
		)
	}
	return result, nil
}
