// Package metrics exposes Prometheus instruments for fits, bootstrap runs and jobs.
package metrics

import (
	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BootstrapIterations counts completed bootstrap refits by outcome
	BootstrapIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootfit_bootstrap_iterations_total",
		Help: "Total bootstrap refits by status",
	}, []string{"status"})

	// OptimizerRuns counts backend invocations by backend and outcome
	OptimizerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootfit_optimizer_runs_total",
		Help: "Total optimizer backend runs by backend and outcome",
	}, []string{"backend", "outcome"})

	// RefitDuration tracks the wall time of one bootstrap refit
	RefitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bootfit_refit_duration_seconds",
		Help:    "Bootstrap refit duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	})

	// Jobs counts server jobs by terminal state
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootfit_jobs_total",
		Help: "Total jobs by final state",
	}, []string{"state"})
)

// Outcome labels a backend status.
func Outcome(s opt.Status) string {
	switch {
	case s.Converged():
		return "converged"
	case s.OK():
		return "max_iterations"
	case s == opt.StatusFailure:
		return "failure"
	default:
		return "invalid"
	}
}

// ObserveFit records a single fit's backend run.
func ObserveFit(backend string, s opt.Status) {
	OptimizerRuns.WithLabelValues(backend, Outcome(s)).Inc()
}

// BootstrapObserver feeds bootstrap iteration records into the collectors.
type BootstrapObserver struct{}

func (BootstrapObserver) OnIteration(rec bootstrap.IterationRecord) {
	status := "ok"
	if !rec.Status.OK() {
		status = "failed"
	}
	BootstrapIterations.WithLabelValues(status).Inc()
	OptimizerRuns.WithLabelValues(rec.Backend, Outcome(rec.Status)).Inc()
	RefitDuration.Observe(rec.Duration.Seconds())
}
