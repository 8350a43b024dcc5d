package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/bootfit/internal/store"
)

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	JobID        string      `json:"jobId"`
	State        JobState    `json:"state"`
	Phase        string      `json:"phase"`
	Completed    int         `json:"completed"`
	Total        int         `json:"total"`
	Failed       int         `json:"failed"`
	FitStatistic store.Float `json:"fitStatistic"`
	Timestamp    time.Time   `json:"timestamp"`
}

func eventFromJob(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:        job.ID,
		State:        job.State,
		Phase:        job.Phase,
		Completed:    job.Completed,
		Total:        job.Total,
		Failed:       job.Failed,
		FitStatistic: job.FitStat,
		Timestamp:    time.Now(),
	}
}

// Event names on the SSE stream. The terminal event carries the final job state.
const (
	eventProgress = "progress"
	eventDone     = "done"
)

// clientBuffer is the number of events a slow SSE client may lag behind
const clientBuffer = 16

// EventBroadcaster fans job progress out to SSE clients. It keeps the latest
// event of every job so late subscribers start from the current state.
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[chan ProgressEvent]struct{}
	latest  map[string]ProgressEvent
}

// NewEventBroadcaster creates an empty broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]map[chan ProgressEvent]struct{}),
		latest:  make(map[string]ProgressEvent),
	}
}

// Subscribe registers a client channel for jobID, primed with the latest event.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, clientBuffer)
	set := eb.clients[jobID]
	if set == nil {
		set = make(map[chan ProgressEvent]struct{})
		eb.clients[jobID] = set
	}
	set[ch] = struct{}{}

	if event, ok := eb.latest[jobID]; ok {
		ch <- event
	}

	slog.Debug("SSE client subscribed", "job_id", jobID, "clients", len(set))
	return ch
}

// Unsubscribe removes and closes a client channel. Channels already closed by
// CleanupJob are left alone.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	set, ok := eb.clients[jobID]
	if !ok {
		return
	}
	if _, subscribed := set[ch]; !subscribed {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(eb.clients, jobID)
	}
	slog.Debug("SSE client unsubscribed", "job_id", jobID)
}

// Broadcast delivers event to every client of its job. Progress events are
// dropped for clients that lag behind; a terminal event replaces the oldest
// queued one so every client sees how the job ended.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event

	for ch := range eb.clients[event.JobID] {
		select {
		case ch <- event:
			continue
		default:
		}
		if !event.State.Finished() {
			slog.Debug("SSE client lagging, progress dropped", "job_id", event.JobID, "completed", event.Completed)
			continue
		}
		select {
		case <-ch:
		default:
		}
		ch <- event
	}
}

// CleanupJob closes the job's client channels and forgets its latest event
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[jobID] {
		close(ch)
	}
	delete(eb.clients, jobID)
	delete(eb.latest, jobID)
	slog.Debug("Released SSE clients", "job_id", jobID)
}

// handleJobStream handles SSE connections for job progress
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Subscribe before taking the snapshot so a job finishing in between
	// still delivers its terminal event.
	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	job, _ := s.jobManager.GetJob(jobID)
	if err := writeSSEEvent(w, eventFromJob(job)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Finished() {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "jobID", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Finished() {
				return
			}

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one named SSE event with the JSON payload
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	name := eventProgress
	if event.State.Finished() {
		name = eventDone
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
