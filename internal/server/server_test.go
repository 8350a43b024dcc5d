package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestServer_CreateJob(t *testing.T) {
	cfgPath := writeLineConfig(t, t.TempDir(), 5)
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	body, _ := json.Marshal(JobConfig{ConfigPath: cfgPath, Seed: 3})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state in response, got %s", job.State)
	}
	if job.Config.Seed != 3 {
		t.Errorf("Override not echoed: %+v", job.Config)
	}

	waitForState(t, s, job.ID, StateCompleted)
}

func TestServer_CreateJob_BadRequest(t *testing.T) {
	cfgPath := writeLineConfig(t, t.TempDir(), 5)
	s := NewServer(":8080", nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing config", `{}`},
		{"unknown file", `{"configPath": "/nonexistent/fit.yaml"}`},
		{"bad override", fmt.Sprintf(`{"configPath": %q, "statistic": "likelihood"}`, cfgPath)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	if jobs := s.jobManager.ListJobs(); len(jobs) != 0 {
		t.Errorf("Rejected requests should not create jobs, got %d", len(jobs))
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)
	s.jobManager.CreateJob(JobConfig{ConfigPath: "a.yaml"})
	s.jobManager.CreateJob(JobConfig{ConfigPath: "b.yaml"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{ConfigPath: "fit.yaml"})
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Phase = PhaseBootstrap
		j.Total = 100
		j.Completed = 40
	})

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}

		var status map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status["state"] != string(StateRunning) || status["phase"] != PhaseBootstrap {
			t.Errorf("Unexpected status %v", status)
		}
		if status["completed"] != float64(40) || status["total"] != float64(100) {
			t.Errorf("Unexpected progress %v/%v", status["completed"], status["total"])
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.jobManager.setCancel(job.ID, cancel)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if ctx.Err() == nil {
		t.Error("Job context should be cancelled")
	}

	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCancelled })
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for finished job, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{ConfigPath: "fit.yaml"})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPut, "/api/v1/jobs", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/status", nil),
	} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	cfgPath := writeLineConfig(t, t.TempDir(), 3)
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{ConfigPath: cfgPath})
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"bootfit_jobs_total", "bootfit_bootstrap_iterations_total", "bootfit_refit_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("Metrics output should contain %s", name)
		}
	}
}

func TestServer_JobStream_Finished(t *testing.T) {
	cfgPath := writeLineConfig(t, t.TempDir(), 4)
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{ConfigPath: cfgPath})
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/stream", job.ID), nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stream of a finished job should end after the snapshot")
	}

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: done\ndata: {") {
		t.Fatalf("Expected a done event, got %q", body)
	}

	var event ProgressEvent
	line := strings.TrimSpace(body[strings.Index(body, "data: ")+len("data: "):])
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if event.State != StateCompleted || event.Completed != 4 {
		t.Errorf("Unexpected terminal event %+v", event)
	}
}

func TestServer_JobStream_Running(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(JobConfig{ConfigPath: "fit.yaml"})
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateRunning })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleJobStream(w, req, job.ID)
		close(done)
	}()

	// wait for the subscription, then finish the job
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.jobManager.broadcaster.mu.RLock()
		subscribed := len(s.jobManager.broadcaster.clients[job.ID]) > 0
		s.jobManager.broadcaster.mu.RUnlock()
		if subscribed || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateCompleted
		j.Completed = 7
	})
	finishEvents(s.jobManager, job.ID)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stream should end after the terminal event")
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: progress\n") {
		t.Errorf("Expected the snapshot as a progress event, got %q", body)
	}
	if n := strings.Count(body, "event: done\n"); n != 1 {
		t.Errorf("Expected one terminal event, got %d", n)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()
	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{
		JobID:     "job1",
		State:     StateRunning,
		Completed: 10,
		Total:     50,
		Timestamp: time.Now(),
	})

	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Completed != 10 {
			t.Errorf("Expected 10 completed, got %d", received.Completed)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// late subscribers get the last event
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		if received.Total != 50 {
			t.Errorf("Expected replayed event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for replayed event")
	}

	eb.CleanupJob("job1")
	if _, ok := <-late; ok {
		t.Error("Cleanup should close subscriber channels")
	}
}

func TestEventBroadcaster_LaggingClientGetsTerminalEvent(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")

	// nobody reads: overflow the buffer with progress
	for i := 0; i < 3*clientBuffer; i++ {
		eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Completed: i})
	}
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateFailed, Completed: 99})
	eb.CleanupJob("job1")

	var last ProgressEvent
	n := 0
	for event := range ch {
		last = event
		n++
	}
	if n != clientBuffer {
		t.Errorf("Expected a full buffer of %d events, got %d", clientBuffer, n)
	}
	if last.State != StateFailed || last.Completed != 99 {
		t.Errorf("Expected the terminal event last, got %+v", last)
	}

	// Unsubscribe after cleanup must not close twice
	eb.Unsubscribe("job1", ch)
}

// waitForState polls a job until it reaches state or the test times out.
func waitForState(t *testing.T, s *Server, jobID string, state JobState) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := s.jobManager.GetJob(jobID)
		if job.State == state {
			return
		}
		if job.State.Finished() {
			t.Fatalf("Job finished in %s (%s), expected %s", job.State, job.Error, state)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for job state %s", state)
}
