// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/metrics"
	"github.com/kitbuilder587/completion-gateway/internal/service"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	config   Config
	generate service.GenerateService
	reload   service.ReloadService
	logger   *zap.Logger
	metrics  *metrics.Metrics
	server   *http.Server
}

func NewServer(cfg Config, generate service.GenerateService, reload service.ReloadService, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:   cfg,
		generate: generate,
		reload:   reload,
		logger:   logger,
		metrics:  m,
	}
	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/generate", s.handleGenerate)
	r.Post("/reload-env", s.handleReload)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// Serve accepts connections on ln until Shutdown is called. Serve after
// Shutdown returns immediately.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown waits for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway shutting down")
	return s.server.Shutdown(ctx)
}
