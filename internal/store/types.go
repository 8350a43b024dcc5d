package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/google/uuid"
)

// Float is a float64 that survives JSON round trips: NaN and infinities are
// written as null and read back as NaN.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func toFloats(v []float64) []Float {
	if v == nil {
		return nil
	}
	out := make([]Float, len(v))
	for i, x := range v {
		out[i] = Float(x)
	}
	return out
}

func fromFloats(v []Float) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Run is a persisted fit, optionally followed by a bootstrap.
//
// The best-fit vector and fixed flags are enough to recompute the bootstrap
// summaries from samples.tsv, so the summaries stored here are a convenience
// copy for listings and the HTTP API.
type Run struct {
	// ID is the unique identifier of the run (a UUID unless set by the caller)
	ID string `json:"id"`

	// CreatedAt records when the run finished
	CreatedAt time.Time `json:"createdAt"`

	// ConfigPath is the YAML configuration the run was started from, if any
	ConfigPath string `json:"configPath,omitempty"`

	// DataPath is the resolved data file
	DataPath string `json:"dataPath"`

	// Model is the profile function name
	Model string `json:"model"`

	// Statistic is the fit statistic name (chisquare, cash, poisson-mlr)
	Statistic string `json:"statistic"`

	Fit FitRecord `json:"fit"`

	// Bootstrap is nil for fit-only runs
	Bootstrap *BootstrapRecord `json:"bootstrap,omitempty"`
}

// FitRecord is the persisted outcome of the initial fit.
type FitRecord struct {
	Backend          string   `json:"backend"`
	Status           int      `json:"status"`
	Names            []string `json:"names"`
	Params           []Float  `json:"params"`
	Errors           []Float  `json:"errors,omitempty"`
	Fixed            []bool   `json:"fixed"`
	Iterations       int      `json:"iterations"`
	Evaluations      int      `json:"evaluations"`
	NFree            int      `json:"nFree"`
	NValid           int      `json:"nValid"`
	InitialStatistic Float    `json:"initialStatistic"`
	FinalStatistic   Float    `json:"finalStatistic"`
	ReducedStatistic Float    `json:"reducedStatistic"`
	AICc             Float    `json:"aicc"`
	BIC              Float    `json:"bic"`
}

// BootstrapRecord is the persisted outcome of a bootstrap run.
type BootstrapRecord struct {
	Iterations     int                 `json:"iterations"`
	Seed           int64               `json:"seed"`
	Workers        int                 `json:"workers"`
	Backend        string              `json:"backend"`
	FailurePolicy  string              `json:"failurePolicy"`
	Failed         int                 `json:"failed"`
	ElapsedSeconds float64             `json:"elapsedSeconds"`
	Summaries      []bootstrap.Summary `json:"summaries"`
}

// RunInfo contains metadata about a run without the parameter data.
type RunInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Model          string    `json:"model"`
	Statistic      string    `json:"statistic"`
	Backend        string    `json:"backend"`
	Params         int       `json:"params"`
	FinalStatistic Float     `json:"finalStatistic"`
	Iterations     int       `json:"iterations"` // bootstrap rounds, 0 for fit-only runs
	Failed         int       `json:"failed"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRun builds a run record from a completed fit. An empty id gets a fresh UUID.
func NewRun(id, configPath, dataPath, model string, res *fit.FitResult, limits opt.Limits) *Run {
	if id == "" {
		id = NewRunID()
	}
	fixed := make([]bool, len(res.Params))
	for i := range fixed {
		fixed[i] = limits.IsFixed(i)
	}
	return &Run{
		ID:         id,
		CreatedAt:  time.Now(),
		ConfigPath: configPath,
		DataPath:   dataPath,
		Model:      model,
		Statistic:  res.Statistic.String(),
		Fit: FitRecord{
			Backend:          res.Backend,
			Status:           int(res.Status),
			Names:            res.Names,
			Params:           toFloats(res.Params),
			Errors:           toFloats(res.Errors),
			Fixed:            fixed,
			Iterations:       res.Iterations,
			Evaluations:      res.Evaluations,
			NFree:            res.NFree,
			NValid:           res.NValid,
			InitialStatistic: Float(res.InitialStatistic),
			FinalStatistic:   Float(res.FinalStatistic),
			ReducedStatistic: Float(res.ReducedStatistic),
			AICc:             Float(res.AICc),
			BIC:              Float(res.BIC),
		},
	}
}

// AttachBootstrap records the outcome of a bootstrap run.
func (r *Run) AttachBootstrap(res *bootstrap.Result, workers int) {
	r.Bootstrap = &BootstrapRecord{
		Iterations:     res.Samples.Iterations(),
		Seed:           res.Seed,
		Workers:        workers,
		Backend:        res.Backend,
		FailurePolicy:  res.Policy.String(),
		Failed:         res.Failed,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Summaries:      res.Summaries,
	}
	r.CreatedAt = time.Now()
}

// BestFit returns the best-fit parameter vector.
func (r *Run) BestFit() []float64 {
	return fromFloats(r.Fit.Params)
}

// Limits rebuilds a limits table carrying the fixed flags. Bounds are not
// persisted; the table is only good for summarizing.
func (r *Run) Limits() opt.Limits {
	limits := make(opt.Limits, len(r.Fit.Fixed))
	for i, f := range r.Fit.Fixed {
		limits[i].Fixed = f
	}
	return limits
}

// FitResult rebuilds the fit outcome for reporting.
func (r *Run) FitResult() *fit.FitResult {
	stat, _ := opt.ParseStatistic(r.Statistic)
	return &fit.FitResult{
		Params:           r.BestFit(),
		Errors:           fromFloats(r.Fit.Errors),
		Names:            r.Fit.Names,
		Backend:          r.Fit.Backend,
		Statistic:        stat,
		Status:           opt.Status(r.Fit.Status),
		Iterations:       r.Fit.Iterations,
		Evaluations:      r.Fit.Evaluations,
		NFree:            r.Fit.NFree,
		NValid:           r.Fit.NValid,
		InitialStatistic: float64(r.Fit.InitialStatistic),
		FinalStatistic:   float64(r.Fit.FinalStatistic),
		ReducedStatistic: float64(r.Fit.ReducedStatistic),
		AICc:             float64(r.Fit.AICc),
		BIC:              float64(r.Fit.BIC),
	}
}

// ToInfo converts a full Run to RunInfo (metadata only).
func (r *Run) ToInfo() RunInfo {
	info := RunInfo{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Model:          r.Model,
		Statistic:      r.Statistic,
		Backend:        r.Fit.Backend,
		Params:         len(r.Fit.Params),
		FinalStatistic: r.Fit.FinalStatistic,
	}
	if r.Bootstrap != nil {
		info.Iterations = r.Bootstrap.Iterations
		info.Failed = r.Bootstrap.Failed
	}
	return info
}

// Validate checks if the run has valid data.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	if r.Model == "" {
		return &ValidationError{Field: "Model", Reason: "cannot be empty"}
	}
	if _, err := opt.ParseStatistic(r.Statistic); err != nil {
		return &ValidationError{Field: "Statistic", Reason: err.Error()}
	}

	n := len(r.Fit.Params)
	if n == 0 {
		return &ValidationError{Field: "Fit.Params", Reason: "cannot be empty"}
	}
	if len(r.Fit.Names) != n {
		return &ValidationError{
			Field:  "Fit.Names",
			Reason: fmt.Sprintf("length mismatch: expected %d names, got %d", n, len(r.Fit.Names)),
		}
	}
	if len(r.Fit.Fixed) != n {
		return &ValidationError{
			Field:  "Fit.Fixed",
			Reason: fmt.Sprintf("length mismatch: expected %d flags, got %d", n, len(r.Fit.Fixed)),
		}
	}
	if r.Fit.Errors != nil && len(r.Fit.Errors) != n {
		return &ValidationError{Field: "Fit.Errors", Reason: "length mismatch"}
	}

	if b := r.Bootstrap; b != nil {
		if b.Iterations < 0 {
			return &ValidationError{Field: "Bootstrap.Iterations", Reason: "cannot be negative"}
		}
		if b.Failed < 0 || b.Failed > b.Iterations {
			return &ValidationError{Field: "Bootstrap.Failed", Reason: "must be within [0, iterations]"}
		}
		if len(b.Summaries) != n {
			return &ValidationError{Field: "Bootstrap.Summaries", Reason: "one summary per parameter required"}
		}
		if _, err := bootstrap.ParseFailurePolicy(b.FailurePolicy); err != nil {
			return &ValidationError{Field: "Bootstrap.FailurePolicy", Reason: err.Error()}
		}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
