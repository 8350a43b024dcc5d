// Package bootstrap estimates parameter uncertainties by repeatedly resampling the
// data of a fit-statistic model and refitting it from the best-fit solution.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/bootfit/internal/opt"
	"golang.org/x/sync/errgroup"
)

// Model is the fit-statistic collaborator the engine resamples and refits.
type Model interface {
	opt.Model

	// EnterBootstrapMode makes later evaluations use resampled data
	EnterBootstrapMode()

	// Resample replaces the model's working data with a fresh resampled set,
	// drawing only from rng
	Resample(rng *rand.Rand) error

	// ParamHeader returns the tab-delimited parameter names
	ParamHeader() string
}

// Cloner is implemented by models that can hand each worker a private copy.
type Cloner interface {
	CloneModel() Model
}

// FailurePolicy decides what happens to iterations whose refit did not succeed.
type FailurePolicy int

const (
	// KeepFailed stores and summarizes failed refits like any other.
	KeepFailed FailurePolicy = iota
	// ExcludeFailed stores failed refits but leaves them out of the summaries.
	ExcludeFailed
	// RetryFailed resamples again up to MaxRetries times, then keeps the last refit.
	RetryFailed
)

func (p FailurePolicy) String() string {
	switch p {
	case KeepFailed:
		return "keep"
	case ExcludeFailed:
		return "exclude"
	case RetryFailed:
		return "retry"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseFailurePolicy converts a config or flag value into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepFailed, nil
	case "exclude":
		return ExcludeFailed, nil
	case "retry":
		return RetryFailed, nil
	default:
		return 0, fmt.Errorf("unknown failure policy: %q", s)
	}
}

// DefaultMaxRetries bounds RetryFailed when Config.MaxRetries is unset.
const DefaultMaxRetries = 3

var (
	ErrCloneRequired  = errors.New("bootstrap: parallel runs need a model that implements Cloner")
	ErrInvalidConfig  = errors.New("bootstrap: invalid configuration")
	ErrVectorMismatch = errors.New("bootstrap: best-fit vector does not match model")
)

// Config controls one bootstrap run.
type Config struct {
	Iterations    int
	Tolerance     float64
	Statistic     opt.Statistic
	Seed          int64 // 0 seeds from the wall clock
	Workers       int   // <= 1 runs sequentially
	FailurePolicy FailurePolicy
	MaxRetries    int
	MaxIterations int // per-refit backend cap, 0 = backend default
}

// Result is the outcome of a bootstrap run.
type Result struct {
	Seed      int64
	Backend   string
	Policy    FailurePolicy
	Header    string
	BestFit   []float64
	Samples   *SampleMatrix
	Statuses  []opt.Status
	Retries   []int
	Summaries []Summary
	Failed    int
	Timing    TimingSummary
	Elapsed   time.Duration
}

// Included marks the iterations that entered the summaries.
func (r *Result) Included() []bool {
	if r.Policy != ExcludeFailed {
		return nil
	}
	include := make([]bool, len(r.Statuses))
	for i, s := range r.Statuses {
		include[i] = s.OK()
	}
	return include
}

// Engine runs bootstrap resampling with a fixed backend selector.
type Engine struct {
	selector  *opt.Selector
	cfg       Config
	observers []Observer
}

// NewEngine creates an engine. Observers receive every completed iteration.
func NewEngine(selector *opt.Selector, cfg Config, observers ...Observer) *Engine {
	return &Engine{selector: selector, cfg: cfg, observers: observers}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run resamples and refits Iterations times starting from bestFit, then summarizes.
// Every iteration draws from its own random stream seeded from a master stream, so a
// fixed Seed reproduces the sample matrix for any worker count. Cancellation is
// checked between iterations.
func (e *Engine) Run(ctx context.Context, model Model, bestFit []float64, limits opt.Limits) (*Result, error) {
	cfg := e.cfg
	nParams := model.ParamCount()
	if len(bestFit) != nParams {
		return nil, fmt.Errorf("%w: %d values for %d parameters", ErrVectorMismatch, len(bestFit), nParams)
	}
	if cfg.Iterations < 0 {
		return nil, fmt.Errorf("%w: iterations must not be negative, got %d", ErrInvalidConfig, cfg.Iterations)
	}
	if err := limits.Validate(nParams); err != nil {
		return nil, err
	}
	if cfg.FailurePolicy == RetryFailed && cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	backend, err := e.selector.Select(cfg.Statistic)
	if err != nil {
		return nil, err
	}
	if lc, ok := backend.(opt.LimitsChecker); ok {
		if err := lc.CheckLimits(bestFit, limits); err != nil {
			return nil, err
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, cfg.Iterations)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	best := make([]float64, nParams)
	copy(best, bestFit)

	run := &runState{
		engine:   e,
		cfg:      cfg,
		backend:  backend,
		limits:   limits,
		bestFit:  best,
		seeds:    seeds,
		samples:  NewSampleMatrix(nParams, cfg.Iterations),
		statuses: make([]opt.Status, cfg.Iterations),
		retries:  make([]int, cfg.Iterations),
		timing:   newTiming(),
	}

	model.EnterBootstrapMode()

	slog.Info("Starting bootstrap iterations",
		"iterations", cfg.Iterations,
		"backend", backend.Name(),
		"seed", seed,
		"workers", max(cfg.Workers, 1),
		"failure_policy", cfg.FailurePolicy.String(),
	)

	start := time.Now()
	if cfg.Workers > 1 && cfg.Iterations > 1 {
		err = run.parallel(ctx, model)
	} else {
		err = run.sequential(ctx, model)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		Seed:     seed,
		Backend:  backend.Name(),
		Policy:   cfg.FailurePolicy,
		Header:   model.ParamHeader(),
		BestFit:  best,
		Samples:  run.samples,
		Statuses: run.statuses,
		Retries:  run.retries,
		Timing:   run.timing.summary(),
		Elapsed:  time.Since(start),
	}
	for _, s := range run.statuses {
		if !s.OK() {
			result.Failed++
		}
	}

	names := make([]string, nParams)
	for i := range names {
		names[i] = model.ParameterName(i)
	}
	result.Summaries = Summarize(run.samples, best, limits, names, result.Included())

	slog.Info("Bootstrap complete",
		"iterations", cfg.Iterations,
		"failed", result.Failed,
		"elapsed", result.Elapsed,
		"refit_p50", result.Timing.P50,
	)
	return result, nil
}

// runState is the mutable state shared by the iterations of one Run.
type runState struct {
	engine  *Engine
	cfg     Config
	backend opt.Backend
	limits  opt.Limits
	bestFit []float64
	seeds   []int64

	samples  *SampleMatrix
	statuses []opt.Status
	retries  []int
	timing   *timing

	mu sync.Mutex // serializes observer callbacks
}

func (r *runState) sequential(ctx context.Context, model Model) error {
	for i := range r.seeds {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap cancelled after %d iterations: %w", i, err)
		}
		if err := r.iterate(model, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *runState) parallel(ctx context.Context, model Model) error {
	cloner, ok := model.(Cloner)
	if !ok {
		return ErrCloneRequired
	}

	workers := min(r.cfg.Workers, len(r.seeds))
	pool := make(chan Model, workers)
	for w := 0; w < workers; w++ {
		clone := cloner.CloneModel()
		clone.EnterBootstrapMode()
		pool <- clone
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range r.seeds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := <-pool
			defer func() { pool <- m }()
			return r.iterate(m, i)
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("bootstrap cancelled: %w", ctxErr)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bootstrap cancelled: %w", err)
	}
	return nil
}

// iterate performs resample-and-refit for iteration i and stores column i.
func (r *runState) iterate(model Model, i int) error {
	rng := rand.New(rand.NewSource(r.seeds[i]))
	params := make([]float64, len(r.bestFit))
	settings := opt.Settings{
		Tolerance:     r.cfg.Tolerance,
		Verbosity:     -1,
		Rand:          rng,
		MaxIterations: r.cfg.MaxIterations,
	}

	retries := 0
	for {
		if err := model.Resample(rng); err != nil {
			return fmt.Errorf("bootstrap iteration %d: resample failed: %w", i+1, err)
		}
		copy(params, r.bestFit)

		start := time.Now()
		res, err := r.backend.Minimize(params, r.limits, model, settings)
		elapsed := time.Since(start)
		r.timing.record(elapsed)
		if err != nil {
			return fmt.Errorf("bootstrap iteration %d: %w", i+1, err)
		}

		if res.Status.OK() || r.cfg.FailurePolicy != RetryFailed || retries >= r.cfg.MaxRetries {
			r.samples.SetColumn(i, params)
			r.statuses[i] = res.Status
			r.retries[i] = retries
			r.notify(IterationRecord{
				Index:     i,
				Seed:      r.seeds[i],
				Backend:   res.Backend,
				Status:    res.Status,
				Statistic: res.FinalStatistic,
				Params:    append([]float64(nil), params...),
				Duration:  elapsed,
				Retries:   retries,
			})
			return nil
		}
		retries++
	}
}

func (r *runState) notify(rec IterationRecord) {
	if len(r.engine.observers) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.engine.observers {
		o.OnIteration(rec)
	}
}
