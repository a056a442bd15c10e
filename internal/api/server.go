package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the status endpoints. A nil m leaves /metrics unmounted.
func NewRouter(h *Handlers, m *metrics.Metrics, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/progress", h.GetProgress)
		r.Get("/progress/categories/{categoryID}", h.GetCategoryProgress)
	})

	return r
}

// Server serves the status API for the lifetime of a crawl.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "status_server"),
	}
}

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server starting", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.http.Shutdown(ctx)
}
