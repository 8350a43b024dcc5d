package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/metrics"
	"github.com/cwbudde/bootfit/internal/store"
)

// progressInterval throttles SSE progress events to two per second
const progressInterval = 500 * time.Millisecond

// runJob executes a fit followed by a bootstrap in the background.
// If runStore is not nil the finished run is persisted under the job ID.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	cfg, err := job.Config.Resolve()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	model, err := cfg.BuildModel()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	selector, err := cfg.Selector()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	limits := cfg.Limits()

	slog.Info("Starting job", "job_id", jobID, "config", job.Config.ConfigPath, "model", cfg.Model)

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}

	res, err := fit.Fit(model, cfg.InitialParams(), limits, selector, cfg.Settings(-1))
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	metrics.ObserveFit(res.Backend, res.Status)

	bcfg := cfg.BootstrapSettings()
	jm.UpdateJob(jobID, func(j *Job) {
		j.Model = cfg.Model
		j.Statistic = res.Statistic.String()
		j.Backend = res.Backend
		j.BestFit = floats(res.Params)
		j.FitStat = store.Float(res.FinalStatistic)
		j.Total = bcfg.Iterations
		j.Phase = PhaseBootstrap
	})
	jm.broadcaster.Broadcast(progressEvent(jm, jobID))

	run := store.NewRun(jobID, job.Config.ConfigPath, cfg.DataPath(), cfg.Model, res, limits)

	var trace *store.TraceWriter
	if fs, ok := runStore.(*store.FSStore); ok && bcfg.Iterations > 0 {
		trace, err = store.NewTraceWriter(fs.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		}
	}

	var bres *bootstrap.Result
	if bcfg.Iterations > 0 {
		observers := []bootstrap.Observer{
			metrics.BootstrapObserver{},
			bootstrap.ObserverFunc(func(rec bootstrap.IterationRecord) {
				jm.UpdateJob(jobID, func(j *Job) {
					j.Completed++
					if !rec.Status.OK() {
						j.Failed++
					}
				})
			}),
		}
		if trace != nil {
			observers = append(observers, trace)
		}

		progressDone := make(chan struct{})
		go monitorProgress(ctx, jm, jobID, progressDone)

		engine := bootstrap.NewEngine(selector, bcfg, observers...)
		bres, err = engine.Run(ctx, model, res.Params, limits)
		close(progressDone)
		if trace != nil {
			if cerr := trace.Close(); cerr != nil {
				slog.Warn("Failed to close trace", "job_id", jobID, "error", cerr)
			}
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				markJobCancelled(jm, jobID)
				return err
			}
			markJobFailed(jm, jobID, err)
			return err
		}
		run.AttachBootstrap(bres, bcfg.Workers)
	}

	if runStore != nil {
		if err := persistRun(runStore, run, bres); err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
	}

	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Phase = PhaseDone
		j.EndTime = &endTime
		if runStore != nil {
			j.RunID = run.ID
		}
		if bres != nil {
			j.Summaries = bres.Summaries
			j.Failed = bres.Failed
		}
	})
	metrics.Jobs.WithLabelValues(string(StateCompleted)).Inc()

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", endTime.Sub(job.StartTime),
		"fit_statistic", res.FinalStatistic,
		"iterations", bcfg.Iterations,
	)

	finishEvents(jm, jobID)
	return nil
}

func persistRun(runStore store.Store, run *store.Run, bres *bootstrap.Result) error {
	if err := runStore.SaveRun(run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if bres != nil {
		if err := runStore.SaveSamples(run.ID, bres.Header, bres.Samples); err != nil {
			return fmt.Errorf("failed to save samples: %w", err)
		}
	}
	return nil
}

// monitorProgress periodically broadcasts progress events during the bootstrap
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.broadcaster.Broadcast(progressEvent(jm, jobID))
		}
	}
}

// progressEvent builds an event from the current job snapshot
func progressEvent(jm *JobManager, jobID string) ProgressEvent {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return ProgressEvent{JobID: jobID, Timestamp: time.Now()}
	}
	return eventFromJob(job)
}

// finishEvents sends the terminal event and releases the job's SSE clients
func finishEvents(jm *JobManager, jobID string) {
	jm.broadcaster.Broadcast(progressEvent(jm, jobID))
	jm.broadcaster.CleanupJob(jobID)
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)
	finishEvents(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)
	finishEvents(jm, jobID)
}

func floats(v []float64) []store.Float {
	out := make([]store.Float, len(v))
	for i, x := range v {
		out[i] = store.Float(x)
	}
	return out
}
