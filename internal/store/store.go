package store

import "github.com/cwbudde/bootfit/internal/bootstrap"

// Store defines the persistence operations for fit and bootstrap runs.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound (as *NotFoundError) if a run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the run record, overwriting an existing one
	// with the same ID.
	SaveRun(run *Run) error

	// LoadRun retrieves the run record for the given ID.
	LoadRun(id string) (*Run, error)

	// ListRuns returns metadata for all stored runs, oldest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and all associated artifacts:
	//   - run.json
	//   - samples.tsv
	//   - trace.jsonl
	DeleteRun(id string) error

	// SaveSamples writes the bootstrap sample matrix of a run as TSV.
	SaveSamples(id, header string, m *bootstrap.SampleMatrix) error

	// LoadSamples reads the sample matrix of a run back, with its parameter names.
	LoadSamples(id string) ([]string, *bootstrap.SampleMatrix, error)
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
