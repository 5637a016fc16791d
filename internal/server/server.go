// Package server exposes the enrichment core over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/aggregate"
	"github.com/shpitdev/contact-enricher/internal/enrich/batch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/util"
	"github.com/shpitdev/contact-enricher/internal/version"
)

// DefaultMaxBatch caps the number of requests in one batch call.
const DefaultMaxBatch = 500

// Enricher is the aggregator surface the API serves.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) (enrich.Result, error)
	EnrichMany(ctx context.Context, reqs []enrich.Request, opts aggregate.BatchOptions) batch.Summary
}

type Server struct {
	enricher Enricher
	breakers *circuit.Registry
	metrics  http.Handler
	logger   *slog.Logger
	batch    aggregate.BatchOptions
	maxBatch int
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithBatchOptions sets the worker settings used by POST /v1/enrich/batch.
func WithBatchOptions(o aggregate.BatchOptions) Option {
	return func(s *Server) { s.batch = o }
}

func WithMaxBatch(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

func New(enricher Enricher, breakers *circuit.Registry, opts ...Option) *Server {
	s := &Server{
		enricher: enricher,
		breakers: breakers,
		logger:   slog.Default(),
		maxBatch: DefaultMaxBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/enrich/batch", s.handleEnrichBatch)
		r.Get("/breakers", s.handleBreakers)
		r.Post("/breakers/{name}/reset", s.handleBreakerReset)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Current})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req enrich.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.enricher.Enrich(ctx, req)
	if err != nil {
		if errors.Is(err, enrich.ErrInvalidRequest) {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.ErrorContext(ctx, "enrichment failed", "request_id", requestIDFrom(ctx), "error", util.RedactErr(err))
		s.writeError(w, r, http.StatusInternalServerError, "enrichment failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchRequest is the body of POST /v1/enrich/batch.
type BatchRequest struct {
	Requests []enrich.Request `json:"requests"`
	// MinSuccessRate in [0,1]; when the batch falls below it, ThresholdError is set.
	MinSuccessRate float64 `json:"min_success_rate,omitempty"`
}

type BatchResponse struct {
	RunID          string  `json:"run_id"`
	SuccessRate    float64 `json:"success_rate"`
	ThresholdError string  `json:"threshold_error,omitempty"`
	batch.Summary
}

func (s *Server) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case len(body.Requests) == 0:
		s.writeError(w, r, http.StatusBadRequest, "requests must not be empty")
		return
	case len(body.Requests) > s.maxBatch:
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "too many requests in batch")
		return
	case body.MinSuccessRate < 0 || body.MinSuccessRate > 1:
		s.writeError(w, r, http.StatusBadRequest, "min_success_rate must be within [0,1]")
		return
	}

	runID := uuid.NewString()
	start := time.Now()
	summary := s.enricher.EnrichMany(ctx, body.Requests, s.batch)
	resp := BatchResponse{
		RunID:       runID,
		SuccessRate: summary.SuccessRate(),
		Summary:     summary,
	}
	if err := summary.Err(body.MinSuccessRate); err != nil {
		resp.ThresholdError = util.RedactSecrets(err.Error())
	}
	s.logger.InfoContext(ctx, "batch finished",
		"request_id", requestIDFrom(ctx),
		"run_id", runID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"breakers": s.breakers.Snapshot()})
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.breakers.Reset(name); err != nil {
		s.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	s.logger.WarnContext(r.Context(), "breaker reset by operator", "breaker", name, "request_id", requestIDFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: requestIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
