package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cwbudde/bootfit/internal/config"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{ConfigPath: "fit.yaml", Iterations: 10})

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state, got %s", job.State)
	}
	if job.Phase != PhaseFit {
		t.Errorf("Expected fit phase, got %s", job.Phase)
	}
	if job.Config.Iterations != 10 {
		t.Errorf("Config not stored: %+v", job.Config)
	}
	if job.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
}

func TestJobManager_GetJobSnapshot(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	got, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	got.State = StateFailed

	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Errorf("Snapshot mutation leaked into manager: %s", again.State)
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Nonexistent job should not exist")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, jm.CreateJob(JobConfig{ConfigPath: "fit.yaml"}).ID)
	}

	jobs := jm.ListJobs()
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.ID != ids[i] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[i], job.ID)
		}
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Completed = 5
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Completed != 5 {
		t.Errorf("Update not applied: %+v", updated)
	}
	if len(jm.GetRunningJobs()) != 1 {
		t.Error("Expected one running job")
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jm.setCancel(job.ID, cancel)

	if err := jm.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("Job context should be cancelled")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if err := jm.CancelJob(job.ID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("Expected ErrJobFinished, got %v", err)
	}
	if err := jm.CancelJob("nonexistent"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobConfig_Resolve(t *testing.T) {
	path := writeLineConfig(t, t.TempDir(), 30)

	cfg, err := JobConfig{ConfigPath: path}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Bootstrap.Iterations != 30 || cfg.Bootstrap.Seed != 17 {
		t.Errorf("File values not kept: %+v", cfg.Bootstrap)
	}

	cfg, err = JobConfig{
		ConfigPath:    path,
		Statistic:     "cash",
		Iterations:    5,
		Seed:          99,
		Workers:       2,
		FailurePolicy: "retry",
	}.Resolve()
	if err != nil {
		t.Fatalf("Resolve with overrides failed: %v", err)
	}
	if cfg.Statistic != "cash" || cfg.Bootstrap.Iterations != 5 || cfg.Bootstrap.Seed != 99 {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.Bootstrap.Workers != 2 || cfg.Bootstrap.FailurePolicy != "retry" {
		t.Errorf("Overrides not applied: %+v", cfg.Bootstrap)
	}

	if _, err := (JobConfig{ConfigPath: path, FailurePolicy: "ignore"}).Resolve(); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected invalid config error, got %v", err)
	}
	if _, err := (JobConfig{}).Resolve(); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected error for missing config path, got %v", err)
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			jm.UpdateJob(job.ID, func(j *Job) { j.Completed++ })
		}()
		go func() {
			defer wg.Done()
			jm.GetJob(job.ID)
			jm.ListJobs()
		}()
	}
	wg.Wait()

	final, _ := jm.GetJob(job.ID)
	if final.Completed != 50 {
		t.Errorf("Expected 50 completed, got %d", final.Completed)
	}
}
