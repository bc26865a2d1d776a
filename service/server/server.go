package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/roundtrip/service/db"
	"github.com/brojonat/roundtrip/service/metrics"
)

// StatusProvider reports the engine's current state.
type StatusProvider interface {
	Status(ctx context.Context) Status
}

// SubmissionStore is the read side of the submission ledger.
type SubmissionStore interface {
	ListSubmissions(ctx context.Context, params db.ListSubmissionsParams) ([]*db.Submission, error)
	GetSubmission(ctx context.Context, id int64) (*db.Submission, error)
	Ping(ctx context.Context) error
}

// Server represents the HTTP status server for the engine.
type Server struct {
	addr    string
	status  StatusProvider
	store   SubmissionStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The store is optional - if nil, submission endpoints return 503.
// The metrics is optional - if nil, the /metrics endpoint is not registered.
func New(addr string, status StatusProvider, store SubmissionStore, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		status:  status,
		store:   store,
		metrics: m,
		logger:  logger.With("component", "http_server"),
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}
	route("GET /healthz", "healthz", handleHealth(s.store, s.logger))
	route("GET /api/v1/status", "status", handleStatus(s.status))
	route("GET /api/v1/submissions", "list_submissions", handleListSubmissions(s.store, s.logger))
	route("GET /api/v1/submissions/{id}", "get_submission", handleGetSubmission(s.store, s.logger))

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
