package opt

import (
	"errors"
	"math/rand"
)

// Model is the fit-statistic collaborator every backend minimizes.
type Model interface {
	// ParamCount returns the total number of parameters, fixed ones included
	ParamCount() int

	// ValidSampleCount returns the number of data samples entering the statistic
	ValidSampleCount() int

	// ParameterName returns the display name of parameter i
	ParameterName(i int) string

	// Evaluate returns the fit statistic for a full parameter vector
	Evaluate(params []float64) float64
}

// DeviatesModel is a Model that can also report per-sample weighted deviates whose
// squared sum equals the fit statistic. Least-squares backends require it.
type DeviatesModel interface {
	Model

	// Deviates writes ValidSampleCount() deviates for params into out
	Deviates(params, out []float64)
}

// Kind classifies a backend for statistic-based selection.
type Kind int

const (
	Gradient Kind = iota
	DerivativeFree
)

func (k Kind) String() string {
	switch k {
	case Gradient:
		return "gradient"
	case DerivativeFree:
		return "derivative-free"
	default:
		return "unknown"
	}
}

// Settings carries the per-call controls shared by all backends.
type Settings struct {
	// Tolerance is the convergence criterion (fractional change of the statistic)
	Tolerance float64

	// Verbosity < 0 is silent, 0 logs a summary, > 0 logs every iteration
	Verbosity int

	// Rand feeds stochastic backends. Nil means a backend-local source seeded with 1.
	Rand *rand.Rand

	// MaxIterations overrides the backend's own iteration cap when > 0
	MaxIterations int
}

// Backend is one interchangeable minimization strategy.
type Backend interface {
	// Name returns the registry name (levmar, nmsimplex, de, mayfly)
	Name() string

	// Kind reports whether the backend needs derivatives of the statistic
	Kind() Kind

	// Minimize reads the initial guess from params and overwrites it with the best
	// solution found. Limits are never modified. Structural failures return a
	// negative status together with a non-nil error.
	Minimize(params []float64, limits Limits, model Model, s Settings) (Result, error)
}

// LimitsChecker is implemented by backends that put requirements on the limits
// table beyond Limits.Validate. CheckLimits never evaluates the model.
type LimitsChecker interface {
	CheckLimits(params []float64, limits Limits) error
}

// Status is a backend outcome code. Values >= 1 mean a usable solution.
type Status int

const (
	StatusInvalidInput       Status = -2
	StatusInvalidLimits      Status = -1
	StatusFailure            Status = 0
	StatusStatisticConverged Status = 1
	StatusParamsConverged    Status = 2
	StatusBothConverged      Status = 3
	StatusMaxIterations      Status = 5
)

// OK reports whether the backend produced a usable solution.
func (s Status) OK() bool { return s >= 1 }

// Converged reports whether a convergence criterion was met.
func (s Status) Converged() bool {
	return s >= StatusStatisticConverged && s <= StatusBothConverged
}

func (s Status) String() string {
	switch s {
	case StatusInvalidInput:
		return "invalid input"
	case StatusInvalidLimits:
		return "invalid parameter limits"
	case StatusFailure:
		return "failure"
	case StatusStatisticConverged:
		return "statistic converged"
	case StatusParamsConverged:
		return "parameters converged"
	case StatusBothConverged:
		return "statistic and parameters converged"
	case StatusMaxIterations:
		return "iteration limit reached"
	default:
		return "unknown"
	}
}

// Result holds the diagnostics of one Minimize call.
type Result struct {
	Backend          string
	Status           Status
	Iterations       int
	Evaluations      int
	InitialStatistic float64
	FinalStatistic   float64
	NFree            int

	// ParamErrors holds per-parameter standard errors when the backend estimates
	// them (zero for fixed parameters); nil otherwise.
	ParamErrors []float64
}

// Structural errors reported by backends.
var (
	ErrLimitsRequired    = errors.New("opt: parameter limits required")
	ErrInvalidLimits     = errors.New("opt: invalid parameter limits")
	ErrDimensionMismatch = errors.New("opt: parameter vector does not match model")
	ErrDeviatesRequired  = errors.New("opt: model does not provide deviates")
	ErrNoBackend         = errors.New("opt: no backend available")
	ErrNoFreeParameters  = errors.New("opt: all parameters are fixed")
)
