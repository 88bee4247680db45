// Package httpapi exposes the generation cascade over HTTP for non-Telegram clients.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
	"github.com/rhythmlogic/gps/internal/logger"
	"github.com/rhythmlogic/gps/internal/metrics"
	"github.com/rhythmlogic/gps/internal/studio"
)

const shutdownTimeout = 10 * time.Second

// Generator is the part of the studio service the API uses.
type Generator interface {
	Generate(ctx context.Context, in studio.Input, req cascade.Request, progress cascade.ProgressFunc) (*studio.Run, error)
	Candidates() []cascade.Candidate
	UserMessage(err error) string
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface.
type Server struct {
	cfg      config.HTTPConfig
	gen      Generator
	pinger   Pinger
	metrics  *metrics.Metrics
	validate *validator.Validate
	log      *slog.Logger
	handler  http.Handler

	requestTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRequestTimeout bounds every generation run. Zero leaves runs bound
// only by the client connection.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer builds the router. metrics may be nil, which disables /metrics.
func NewServer(cfg config.HTTPConfig, gen Generator, pinger Pinger, m *metrics.Metrics, log *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		gen:      gen,
		pinger:   pinger,
		metrics:  m,
		validate: validator.New(),
		log:      log.With("component", "httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, logger.HTTPMiddleware(s.log), middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/models", s.handleModels)
		r.Post("/generate", s.handleGenerate)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
