// Package httpserver serves the review API: project status, the paper list
// and review queue, review decisions and snowball iterations.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/snowball"
	"github.com/helixir/snowball-review/internal/storage"
)

// Engine is the review workflow the API drives. *snowball.Engine
// implements it.
type Engine interface {
	RunIteration(ctx context.Context, project *domain.ReviewProject, store storage.Storage) (domain.IterationStats, error)
	UpdateReview(ctx context.Context, store storage.Storage, id string, status domain.PaperStatus, note string) (*domain.Paper, error)
	PapersForReview(ctx context.Context, store storage.Storage) ([]*domain.Paper, error)
	Summary(ctx context.Context, project *domain.ReviewProject, store storage.Storage) (snowball.Summary, error)
}

var _ Engine = (*snowball.Engine)(nil)

// Server is the HTTP review API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     Engine
	store      storage.Storage
	validate   *validator.Validate
	logger     zerolog.Logger
	metrics    *observability.Metrics
	metricsH   http.Handler
	cfg        Config

	// writeMu serialises endpoints that commit to storage.
	writeMu sync.Mutex
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one request, including a snowball iteration.
	RequestTimeout time.Duration
	// MetricsPath is where the metrics handler is mounted.
	MetricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics in m and mounts handler at
// Config.MetricsPath.
func WithMetrics(m *observability.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsH = handler
	}
}

// NewServer creates a new HTTP server over one project's storage.
func NewServer(cfg Config, engine Engine, store storage.Storage, logger zerolog.Logger, opts ...Option) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		engine:   engine,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "http-server").Logger(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestContextMiddleware)
	r.Use(s.requestLoggerMiddleware)
	r.Use(recoverMiddleware)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	if s.metricsH != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metricsH)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/project", s.getProject)
		r.Get("/papers", s.listPapers)
		r.Get("/papers/review", s.reviewQueue)
		r.Get("/papers/{paperID}", s.getPaper)
		r.Get("/iterations", s.listIterations)
		r.Get("/export", s.exportPapers)

		r.Group(func(r chi.Router) {
			r.Use(s.serializeWrites)
			r.Patch("/papers/{paperID}/review", s.updateReview)
			r.Post("/iterations", s.runIteration)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports whether the project storage is reachable.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Statistics(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"storage": "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
