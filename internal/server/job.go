package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/config"
	"github.com/cwbudde/bootfit/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job phases
const (
	PhaseFit       = "fit"
	PhaseBootstrap = "bootstrap"
	PhaseDone      = "done"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// JobConfig names a YAML run configuration and the bootstrap settings to
// override in it. Zero values keep the file's setting.
type JobConfig struct {
	ConfigPath    string `json:"configPath"`
	Statistic     string `json:"statistic,omitempty"`
	Iterations    int    `json:"iterations,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	FailurePolicy string `json:"failurePolicy,omitempty"`
}

// Resolve loads the referenced configuration, applies the overrides and
// validates the result.
func (jc JobConfig) Resolve() (*config.Config, error) {
	if jc.ConfigPath == "" {
		return nil, &config.ValidationError{Field: "configPath", Message: "is required"}
	}
	cfg, err := config.Load(jc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if jc.Statistic != "" {
		cfg.Statistic = jc.Statistic
	}
	if jc.Iterations > 0 {
		cfg.Bootstrap.Iterations = jc.Iterations
	}
	if jc.Seed != 0 {
		cfg.Bootstrap.Seed = jc.Seed
	}
	if jc.Workers > 0 {
		cfg.Bootstrap.Workers = jc.Workers
	}
	if jc.FailurePolicy != "" {
		cfg.Bootstrap.FailurePolicy = jc.FailurePolicy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Job represents a fit plus bootstrap run executed by the server
type Job struct {
	ID        string              `json:"id"`
	State     JobState            `json:"state"`
	Phase     string              `json:"phase"`
	Config    JobConfig           `json:"config"`
	Model     string              `json:"model,omitempty"`
	Statistic string              `json:"statistic,omitempty"`
	Backend   string              `json:"backend,omitempty"`
	BestFit   []store.Float       `json:"bestFit,omitempty"`
	FitStat   store.Float         `json:"fitStatistic"`
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Summaries []bootstrap.Summary `json:"summaries,omitempty"`
	RunID     string              `json:"runId,omitempty"`
	StartTime time.Time           `json:"startTime"`
	EndTime   *time.Time          `json:"endTime,omitempty"`
	Error     string              `json:"error,omitempty"`

	cancel context.CancelFunc
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	order       []string
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Phase:     PhaseFit,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	snapshot := *job
	return &snapshot
}

// GetJob returns a snapshot of a job by ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs in creation order
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.order))
	for _, id := range jm.order {
		snapshot := *jm.jobs[id]
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, id := range jm.order {
		if job := jm.jobs[id]; job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}

// setCancel stores the cancel function of a started job.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.UpdateJob(id, func(j *Job) { j.cancel = cancel })
}

// CancelJob requests cancellation of a pending or running job. The worker
// notices between bootstrap iterations and marks the job cancelled.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.State.Finished() {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.State)
	}
	cancel := job.cancel
	jm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
