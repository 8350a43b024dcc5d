package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/opt"
)

// TraceEntry is one bootstrap iteration as written to trace.jsonl.
type TraceEntry struct {
	// Index is the bootstrap iteration number
	Index int `json:"index"`

	// Seed is the substream seed of the iteration
	Seed int64 `json:"seed"`

	// Backend is the optimizer that performed the refit
	Backend string `json:"backend"`

	// Status is the backend status code of the refit
	Status int `json:"status"`

	// Statistic is the final fit statistic of the refit
	Statistic Float `json:"statistic"`

	// Params is the refitted parameter vector
	Params []Float `json:"params,omitempty"`

	// DurationMs is the wall time of the accepted refit attempt
	DurationMs float64 `json:"durationMs"`

	Retries int `json:"retries,omitempty"`

	// Timestamp records when the entry was written
	Timestamp time.Time `json:"timestamp"`
}

// EntryFromRecord converts an engine iteration record into a trace entry.
func EntryFromRecord(rec bootstrap.IterationRecord) TraceEntry {
	return TraceEntry{
		Index:      rec.Index,
		Seed:       rec.Seed,
		Backend:    rec.Backend,
		Status:     int(rec.Status),
		Statistic:  Float(rec.Statistic),
		Params:     toFloats(rec.Params),
		DurationMs: float64(rec.Duration) / float64(time.Millisecond),
		Retries:    rec.Retries,
		Timestamp:  time.Now(),
	}
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use. It implements
// bootstrap.Observer, so it can be handed to the engine directly.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	errs   int
}

// NewTraceWriter creates a new trace writer for the given run.
// The trace file is created at <baseDir>/runs/<runID>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	runDir := filepath.Join(baseDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := filepath.Join(runDir, "trace.jsonl")

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// OnIteration writes one engine record. Write errors are logged once and
// counted; the bootstrap run is not interrupted.
func (tw *TraceWriter) OnIteration(rec bootstrap.IterationRecord) {
	if err := tw.Write(EntryFromRecord(rec)); err != nil {
		tw.mu.Lock()
		tw.errs++
		first := tw.errs == 1
		tw.mu.Unlock()
		if first {
			slog.Warn("Failed to write trace entry", "path", tw.path, "error", err)
		}
	}
}

// Errors returns the number of entries OnIteration failed to write.
func (tw *TraceWriter) Errors() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.errs
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader creates a new trace reader for the given run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	path := filepath.Join(baseDir, "runs", runID, "trace.jsonl")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// parameter vectors can make long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// IncludedFromTrace rebuilds the inclusion mask of an exclude-policy bootstrap
// of n rounds: a round is included when its refit status is a success. In an
// appended trace the last entry of a round wins. Every round must be present.
func IncludedFromTrace(baseDir, runID string, n int) ([]bool, error) {
	reader, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	include := make([]bool, n)
	seen := make([]bool, n)
	for _, e := range entries {
		if e.Index < 0 || e.Index >= n {
			return nil, fmt.Errorf("trace entry index %d out of range [0, %d)", e.Index, n)
		}
		include[e.Index] = opt.Status(e.Status).OK()
		seen[e.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("trace has no entry for round %d", i)
		}
	}
	return include, nil
}
