package opt

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/bootfit/internal/de"
)

const (
	// PopSizePerParameter is the DE population multiplier applied to the free-parameter count.
	PopSizePerParameter = 10
	// MaxDEGenerations caps a DE run.
	MaxDEGenerations = 600

	deScale     = 0.85
	deCrossover = 1.0
	deStrategy  = de.RandToBest1Exp
)

// deSolver is the part of *de.Solver the adapter uses.
type deSolver interface {
	Solve() de.Result
}

// DiffEvolution adapts the shared limits table to the bounded DE solver.
type DiffEvolution struct {
	newSolver func(de.Config) (deSolver, error)
}

// NewDiffEvolution creates the DE backend.
func NewDiffEvolution() *DiffEvolution {
	return &DiffEvolution{
		newSolver: func(cfg de.Config) (deSolver, error) {
			return de.New(cfg)
		},
	}
}

func (d *DiffEvolution) Name() string { return NameDiffEvoln }
func (d *DiffEvolution) Kind() Kind   { return DerivativeFree }

// DeriveBounds builds the DE bound arrays: fixed parameters collapse to their current
// value, free parameters copy their limits. Every free parameter needs both bounds.
func DeriveBounds(params []float64, limits Limits) (lower, upper []float64, nFree int, err error) {
	if limits == nil {
		return nil, nil, 0, fmt.Errorf("%w: no limits table supplied", ErrLimitsRequired)
	}
	if len(limits) != len(params) {
		return nil, nil, 0, fmt.Errorf("%w: %d limits for %d parameters", ErrDimensionMismatch, len(limits), len(params))
	}

	lower = make([]float64, len(params))
	upper = make([]float64, len(params))
	nFree = len(params)
	for i, lim := range limits {
		if lim.Fixed {
			lower[i] = params[i]
			upper[i] = params[i]
			nFree--
			continue
		}
		if !lim.HasLower || !lim.HasUpper {
			return nil, nil, 0, fmt.Errorf("%w: parameter %d has no lower/upper bound pair", ErrLimitsRequired, i)
		}
		lower[i] = lim.Lower
		upper[i] = lim.Upper
	}
	return lower, upper, nFree, nil
}

// CheckLimits reports whether every free parameter carries both bounds.
func (d *DiffEvolution) CheckLimits(params []float64, limits Limits) error {
	_, _, _, err := DeriveBounds(params, limits)
	return err
}

// PopulationSize returns the DE population for a limits table over n parameters.
func PopulationSize(limits Limits, n int) int {
	return PopSizePerParameter * limits.FreeCount(n)
}

// Minimize runs differential evolution. The limits table must bound every free parameter.
func (d *DiffEvolution) Minimize(params []float64, limits Limits, model Model, s Settings) (Result, error) {
	result := Result{Backend: d.Name()}

	if err := checkVector(params, limits, model); err != nil {
		result.Status = inputStatus(err)
		return result, err
	}
	lower, upper, nFree, err := DeriveBounds(params, limits)
	if err != nil {
		if s.Verbosity >= 0 {
			slog.Error("Parameter limits must be supplied for all free parameters when using DE", "error", err)
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

	maxGen := MaxDEGenerations
	if s.MaxIterations > 0 {
		maxGen = s.MaxIterations
	}
	rng := s.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	solver, err := d.newSolver(de.Config{
		Dim:            len(params),
		PopSize:        PopulationSize(limits, len(params)),
		Lower:          lower,
		Upper:          upper,
		Strategy:       deStrategy,
		Scale:          deScale,
		Crossover:      deCrossover,
		Tolerance:      s.Tolerance,
		MaxGenerations: maxGen,
		Rand:           rng,
		Energy:         model.Evaluate,
		Verbose:        s.Verbosity,
	})
	if err != nil {
		result.Status = StatusInvalidInput
		return result, fmt.Errorf("failed to set up DE solver: %w", err)
	}

	res := solver.Solve()

	result.Iterations = res.Generations
	result.Evaluations = res.Evaluations + 1
	result.FinalStatistic = res.Energy
	if !finite(res.Energy) {
		if s.Verbosity >= 0 {
			slog.Error("DE fit found no finite statistic", "generations", res.Generations)
		}
		result.Status = StatusFailure
		return result, nil
	}

	copy(params, res.Best)
	if res.Converged {
		result.Status = StatusStatisticConverged
	} else {
		result.Status = StatusMaxIterations
	}

	if s.Verbosity >= 0 {
		slog.Info("DE fit complete",
			"status", result.Status.String(),
			"generations", res.Generations,
			"population", PopulationSize(limits, len(params)),
			"initial_statistic", result.InitialStatistic,
			"final_statistic", result.FinalStatistic,
		)
	}
	return result, nil
}
