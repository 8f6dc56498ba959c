package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"scribe-pipeline-go/internal/config"
	"scribe-pipeline-go/internal/dataset"
	"scribe-pipeline-go/internal/logger"
	"scribe-pipeline-go/internal/policy"
	"scribe-pipeline-go/internal/processor"
	"scribe-pipeline-go/internal/progress"
	"scribe-pipeline-go/internal/types"
)

type server struct {
	ctx      context.Context
	cfg      config.Config
	log      *logger.Logger
	resolver *policy.Resolver
	bus      *progress.EventBus
	tracker  *progress.Tracker
	proc     *processor.Processor

	// mockLatency is how long each mock unit of work takes.
	mockLatency time.Duration
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /policies", s.handlePolicies)
	mux.HandleFunc("GET /classify", s.handleClassify)
	mux.HandleFunc("POST /jobs", s.handleStartJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleStopJob)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /demo", s.handleDemo)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

type policyView struct {
	Stage            types.StageKind `json:"stage"`
	MaxRetries       int             `json:"max_retries"`
	Attempts         int             `json:"attempts"`
	AttemptTimeoutMs int64           `json:"attempt_timeout_ms"`
	BaseDelayMs      int64           `json:"base_delay_ms"`
	MaxDelayMs       int64           `json:"max_delay_ms"`
}

func viewOf(p policy.RetryPolicy) policyView {
	return policyView{
		Stage:            p.Stage,
		MaxRetries:       p.MaxRetries,
		Attempts:         p.Attempts(),
		AttemptTimeoutMs: p.AttemptTimeout.Milliseconds(),
		BaseDelayMs:      p.BaseDelay.Milliseconds(),
		MaxDelayMs:       p.MaxDelay.Milliseconds(),
	}
}

func (s *server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	table := s.resolver.Table()
	views := make([]policyView, 0, len(types.Stages()))
	for _, p := range table.Policies() {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preset":   table.Preset().String(),
		"policies": views,
	})
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if strings.TrimSpace(task) == "" {
		http.Error(w, "missing task", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":   task,
		"stage":  s.resolver.Classify(task),
		"policy": viewOf(s.resolver.PolicyFor(task)),
	})
}

func (s *server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "start_job")
	audioURL := r.URL.Query().Get("audio_url")
	if audioURL == "" {
		reqLog.Warn("missing audio_url")
		http.Error(w, "missing audio_url", http.StatusBadRequest)
		return
	}
	tasks := processor.DefaultTasks
	if t := r.URL.Query().Get("tasks"); t != "" {
		tasks = splitList(t)
	}

	jobID := uuid.NewString()
	steps := processor.MockSteps(tasks, s.cfg.DemoFailureRate, s.mockLatency)
	if err := s.proc.Start(s.ctx, jobID, audioURL, steps); err != nil {
		reqLog.WithError(err).Error("failed to start job")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	reqLog.WithField("job_id", jobID).WithField("tasks", len(tasks)).Info("job accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "tasks": tasks})
}

type jobView struct {
	JobID  string             `json:"job_id"`
	Status *progress.Snapshot `json:"status,omitempty"`
	Done   bool               `json:"done"`
	Result *processor.Result  `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, done, err := s.proc.Status(id)
	if errors.Is(err, processor.ErrUnknownJob) {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}
	view := jobView{JobID: id, Done: done}
	if snap, ok := s.tracker.Snapshot(id); ok {
		view.Status = &snap
	}
	if done {
		view.Result = &res
		if err != nil {
			view.Error = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// handleStopJob cancels a running job, or forgets one that already finished.
func (s *server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithField("job_id", id)
	_, done, err := s.proc.Status(id)
	if errors.Is(err, processor.ErrUnknownJob) {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}
	if done {
		if err := s.proc.Forget(id); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		reqLog.Info("job forgotten")
		writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "forgotten": true})
		return
	}
	if err := s.proc.Cancel(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	reqLog.Info("job cancellation requested")
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "cancelled": true})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	events := s.bus.Since(since)
	if events == nil {
		events = []progress.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleDemo runs the first DemoLimit manifest rows through mock steps, one
// after another, and returns every result. Demo jobs leave the tracker once
// their result is in the response.
func (s *server) handleDemo(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "demo")
	reqLog.Info("demo invoked")
	records, err := dataset.Load(s.cfg.DatasetPath, s.log)
	if err != nil {
		reqLog.WithError(err).Error("dataset load error")
		http.Error(w, "dataset load error", http.StatusInternalServerError)
		return
	}
	limit := max(0, min(s.cfg.DemoLimit, len(records)))

	// Rows share ids across requests, so each run gets its own suffix.
	runID := uuid.NewString()[:8]
	out := make([]jobView, 0, limit)
	for _, rec := range records[:limit] {
		tasks := rec.Tasks
		if len(tasks) == 0 {
			tasks = processor.DefaultTasks
		}
		jobID := fmt.Sprintf("demo-%s-%s", rec.JobID, runID)
		reqLog.WithField("demo_job", jobID).WithField("audio_url", rec.AudioURL).Info("processing demo job")
		res, err := s.proc.Process(r.Context(), jobID, rec.AudioURL, processor.MockSteps(tasks, s.cfg.DemoFailureRate, s.mockLatency))
		view := jobView{JobID: jobID, Done: true, Result: &res}
		if snap, ok := s.tracker.Snapshot(jobID); ok {
			view.Status = &snap
		}
		s.tracker.End(jobID)
		if err != nil {
			view.Error = err.Error()
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
