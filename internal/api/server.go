// Package api exposes the HTTP interface for the scout service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compscout/compscout/internal/config"
	"github.com/compscout/compscout/internal/dispatcher"
	"github.com/compscout/compscout/internal/landscape"
	"github.com/compscout/compscout/internal/metrics"
	"github.com/compscout/compscout/internal/travel"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router         chi.Router
	jobStore       landscape.JobStore
	dispatcher     *dispatcher.Dispatcher
	travelProvider landscape.TravelTimeProvider
	idGen          landscape.IDGenerator
	clock          landscape.Clock
	cfg            config.Config
	logger         *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore landscape.JobStore,
	dispatcher *dispatcher.Dispatcher,
	travelProvider landscape.TravelTimeProvider,
	idGen landscape.IDGenerator,
	clock landscape.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:       jobStore,
		dispatcher:     dispatcher,
		travelProvider: travelProvider,
		idGen:          idGen,
		clock:          clock,
		cfg:            cfg,
		logger:         logger,
	}

	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(s.cfg.ServerTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/assignments", s.computeAssignments)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Post("/cancel", s.cancelJob)
			})
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// assignmentsRequest is the synchronous proximity computation payload.
type assignmentsRequest struct {
	Origins        []landscape.Location `json:"origins"`
	Destinations   []landscape.Location `json:"destinations"`
	MaxTimeSeconds float64              `json:"max_time_seconds"`
	Matrix         *landscape.Matrix    `json:"matrix,omitempty"`
}

func (s *Server) computeAssignments(w http.ResponseWriter, r *http.Request) {
	var req assignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	matrix := req.Matrix
	if matrix == nil {
		if s.travelProvider == nil {
			s.writeError(w, http.StatusBadRequest, "a travel time matrix is required when no routing provider is configured")
			return
		}
		var err error
		matrix, err = s.travelProvider.TravelTimes(r.Context(), req.Origins, req.Destinations)
		if err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
	}

	assignments, err := landscape.ClosestLocations(matrix, req.Origins, req.Destinations, req.MaxTimeSeconds)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, landscape.ProximityResult{
		Matrix:      matrix,
		Assignments: assignments,
		Reports:     landscape.RenderReports(assignments, req.Origins, req.Destinations),
	})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var params landscape.JobParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateParameters(params); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	artifacts, err := s.jobStore.ListArtifacts(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job artifacts")
		return
	}
	result := landscape.JobResult{Job: job, Artifacts: artifacts}
	if job.Parameters.Kind == landscape.JobKindProximity {
		proximity, ok, err := s.jobStore.GetProximityResult(r.Context(), jobID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to fetch proximity result")
			return
		}
		if ok {
			result.Proximity = &proximity
		}
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobStore.UpdateJobStatus(
		r.Context(),
		jobID,
		landscape.JobStatusCanceled,
		"canceled via API",
		landscape.JobCounters{},
	); err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(landscape.JobStatusCanceled)})
}

func (s *Server) enqueueJob(ctx context.Context, params landscape.JobParameters) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := landscape.Job{
		ID:         jobID,
		Status:     landscape.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := landscape.QueueItem{
		JobID:     jobID,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func validateParameters(params landscape.JobParameters) error {
	switch params.Kind {
	case landscape.JobKindPlaces:
		if params.Places == nil || len(params.Places.SearchQueries) == 0 {
			return errors.New("places jobs require at least one search query")
		}
	case landscape.JobKindProducts:
		if params.Products == nil || params.Products.SearchQuery == "" || params.Products.Location == "" {
			return errors.New("products jobs require a search query and a location")
		}
	case landscape.JobKindProximity:
		p := params.Proximity
		if p == nil {
			return errors.New("proximity jobs require proximity parameters")
		}
		if p.MaxTimeSeconds <= 0 {
			return errors.New("max_time_seconds must be positive")
		}
		if len(p.Origins) == 0 || len(p.Destinations) == 0 {
			return errors.New("proximity jobs require origins and destinations")
		}
		if p.Matrix != nil && (p.Matrix.Rows() != len(p.Origins) || p.Matrix.Cols() != len(p.Destinations)) {
			return errors.New("matrix shape must match origins and destinations")
		}
	default:
		return fmt.Errorf("unknown job kind %q", params.Kind)
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, landscape.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, travel.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = 60 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
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
