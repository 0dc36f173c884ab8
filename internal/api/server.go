// Package api exposes the HTTP interface for the research service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/delverbot/delver/internal/metrics"
	"github.com/delverbot/delver/internal/research"
)

// Runner starts research work. Satisfied by research.Orchestrator.
type Runner interface {
	Run(ctx context.Context, topic string, initialBudget, deepBudget time.Duration) (research.RunReport, error)
	Resume(ctx context.Context, topic string, deepBudget time.Duration) (research.RunReport, error)
	Summarize(ctx context.Context, topic string) (string, error)
}

// StatusStore is the read side the API needs for topic inspection.
type StatusStore interface {
	FindTopic(ctx context.Context, name string) (research.Topic, bool, error)
	ListTopics(ctx context.Context) ([]research.Topic, error)
	CountDocuments(ctx context.Context, topicID int64) (int, error)
	CountQuestionsByStatus(ctx context.Context, topicID int64) (map[research.QuestionStatus]int, error)
}

// Config controls server behavior.
type Config struct {
	// RequestTimeout bounds synchronous handlers. Research runs are
	// asynchronous and not subject to it.
	RequestTimeout time.Duration
	APIKey         string
}

// Server wires HTTP handlers to the orchestrator and store.
type Server struct {
	router chi.Router
	runner Runner
	store  StatusStore
	cfg    Config
	logger *zap.Logger

	runs *runRegistry
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store StatusStore, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		store:  store,
		cfg:    cfg,
		logger: logger,
		runs:   newRunRegistry(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/research", s.startResearch)
		r.Post("/resume", s.startResume)
		r.Get("/runs/{run_id}", s.getRun)
		r.Route("/topics", func(r chi.Router) {
			r.Get("/", s.listTopics)
			r.Get("/{name}", s.getTopic)
			r.Get("/{name}/summary", s.getSummary)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListTopics(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type researchRequest struct {
	Topic                string `json:"topic"`
	InitialBudgetSeconds int    `json:"initial_budget_seconds"`
	DeepBudgetSeconds    int    `json:"deep_budget_seconds"`
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic required")
		return
	}
	if req.InitialBudgetSeconds <= 0 {
		req.InitialBudgetSeconds = 120
	}
	if req.DeepBudgetSeconds <= 0 {
		req.DeepBudgetSeconds = 300
	}
	runID := s.launch(req.Topic, func(ctx context.Context) (research.RunReport, error) {
		return s.runner.Run(ctx, req.Topic,
			time.Duration(req.InitialBudgetSeconds)*time.Second,
			time.Duration(req.DeepBudgetSeconds)*time.Second,
		)
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

type resumeRequest struct {
	Topic             string `json:"topic"`
	DeepBudgetSeconds int    `json:"deep_budget_seconds"`
}

func (s *Server) startResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic required")
		return
	}
	if req.DeepBudgetSeconds <= 0 {
		req.DeepBudgetSeconds = 300
	}
	runID := s.launch(req.Topic, func(ctx context.Context) (research.RunReport, error) {
		return s.runner.Resume(ctx, req.Topic, time.Duration(req.DeepBudgetSeconds)*time.Second)
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// launch starts a research run in the background, detached from the request
// context so the caller can poll its state later.
func (s *Server) launch(topic string, fn func(context.Context) (research.RunReport, error)) string {
	runID := uuid.NewString()
	s.runs.start(runID, topic)
	go func() {
		report, err := fn(context.Background())
		s.runs.finish(runID, report, err)
		if err != nil {
			s.logger.Error("research run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return runID
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	state, ok := s.runs.get(chi.URLParam(r, "run_id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListTopics(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list topics")
		return
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"topics": names})
}

func (s *Server) getTopic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topic, found, err := s.store.FindTopic(ctx, chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "topic lookup failed")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "topic not found")
		return
	}
	docs, err := s.store.CountDocuments(ctx, topic.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "document count failed")
		return
	}
	questions, err := s.store.CountQuestionsByStatus(ctx, topic.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "question count failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"topic":     topic.Name,
		"documents": docs,
		"questions": map[string]int{
			"pending":    questions[research.QuestionPending],
			"dispatched": questions[research.QuestionDispatched],
			"done":       questions[research.QuestionDone],
		},
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	topic, found, err := s.store.FindTopic(ctx, name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "topic lookup failed")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "topic not found")
		return
	}
	summary, err := s.runner.Summarize(ctx, topic.Name)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"topic": topic.Name, "summary": summary})
}

// RunState is the poll-visible state of an asynchronous research run.
type RunState struct {
	RunID     string              `json:"run_id"`
	Topic     string              `json:"topic"`
	Status    string              `json:"status"`
	StartedAt time.Time           `json:"started_at"`
	Report    *research.RunReport `json:"report,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]RunState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]RunState)}
}

func (r *runRegistry) start(runID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = RunState{
		RunID:     runID,
		Topic:     topic,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
}

func (r *runRegistry) finish(runID string, report research.RunReport, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.runs[runID]
	if err != nil {
		state.Status = "failed"
		state.Error = err.Error()
	} else {
		state.Status = "done"
		state.Report = &report
	}
	r.runs[runID] = state
}

func (r *runRegistry) get(runID string) (RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.runs[runID]
	return state, ok
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
