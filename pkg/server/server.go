// Package server provides the HTTP server of the policy registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/policy/catalog"
	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/server/handlers"
	"mercator-hq/policyhub/pkg/server/middleware"
	"mercator-hq/policyhub/pkg/telemetry/health"
	"mercator-hq/policyhub/pkg/telemetry/logging"
	"mercator-hq/policyhub/pkg/telemetry/metrics"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// Dependencies are the components the server exposes.
type Dependencies struct {
	// Registry is required.
	Registry *registry.Registry

	// Catalog serves /v1/templates. A nil catalog is treated as empty.
	Catalog *catalog.Catalog

	// Journal serves /v1/journal. Nil when the journal is disabled.
	Journal journal.Store

	// Metrics serves the Prometheus endpoint and records HTTP metrics.
	// Nil disables both.
	Metrics *metrics.Collector

	// Tracer opens a span per request. Nil disables request tracing.
	Tracer *tracing.Tracer

	// ReadinessChecks are evaluated by /ready.
	ReadinessChecks map[string]health.CheckFunc

	Logger *slog.Logger
}

// Server is the HTTP server for the policy registry.
type Server struct {
	config       *config.Config
	deps         Dependencies
	logger       *slog.Logger
	httpServer   *http.Server
	listener     net.Listener
	stream       *handlers.StreamHandler
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Catalog == nil {
		deps.Catalog = catalog.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logging.Component(deps.Logger, "server"),
	}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.listener = ln

	cfg := s.config.Server
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer.RegisterOnShutdown(s.stream.Shutdown)
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting policy server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server, ending open streams first.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		timeout := s.config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("policy server stopped")
	})

	return shutdownErr
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	logger := s.deps.Logger

	var httpMetrics *metrics.HTTPMetrics
	if s.deps.Metrics != nil {
		httpMetrics = s.deps.Metrics.HTTP()
	}

	policies := handlers.NewPolicyHandler(s.deps.Registry, logger)
	templates := handlers.NewTemplateHandler(s.deps.Catalog)
	s.stream = handlers.NewStreamHandler(s.deps.Registry, handlers.StreamConfig{
		Buffer:    s.config.Registry.StreamBuffer,
		Heartbeat: s.config.Registry.StreamHeartbeat,
	}, streamMetrics(httpMetrics), logger)

	mux.HandleFunc("GET /v1/policies", policies.List)
	mux.Handle("GET /v1/policies/stream", s.stream)
	mux.HandleFunc("GET /v1/policies/{id}", policies.Get)
	mux.HandleFunc("PUT /v1/policies/{id}", policies.Put)
	mux.HandleFunc("PATCH /v1/policies/{id}", policies.Patch)
	mux.HandleFunc("DELETE /v1/policies/{id}", policies.Delete)
	mux.HandleFunc("GET /v1/templates", templates.List)
	mux.HandleFunc("GET /v1/templates/{id}", templates.Get)
	mux.Handle("GET /v1/journal", handlers.NewJournalHandler(s.deps.Journal))
	mux.Handle("GET /health", handlers.NewHealthHandler())
	mux.Handle("GET /ready", handlers.NewReadyHandler(s.readinessChecks()))

	if s.deps.Metrics != nil && s.deps.Metrics.Enabled() {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux

	// Metrics wraps the mux directly so the matched pattern is visible.
	if httpMetrics != nil {
		handler = middleware.MetricsMiddleware(httpMetrics)(handler)
	}
	if s.deps.Tracer != nil {
		handler = middleware.TracingMiddleware(s.deps.Tracer.Named("http"))(handler)
	}

	handler = middleware.BodyLimitMiddleware(s.config.Server.MaxBodyBytes)(handler)
	handler = middleware.CORSMiddleware(s.convertCORSConfig())(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(logging.Component(logger, "http"))(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}

func (s *Server) readinessChecks() *health.Checker {
	checker := health.New(readinessTimeout)
	for name, check := range s.deps.ReadinessChecks {
		checker.Register(name, check)
	}
	if s.deps.Journal != nil {
		store := s.deps.Journal
		checker.Register("journal", func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		})
	}
	return checker
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	cors := s.config.Server.CORS
	return &middleware.CORSConfig{
		Enabled:          cors.IsEnabled(),
		AllowedOrigins:   cors.AllowedOrigins,
		AllowedMethods:   cors.AllowedMethods,
		AllowedHeaders:   cors.AllowedHeaders,
		ExposedHeaders:   cors.ExposedHeaders,
		MaxAge:           cors.MaxAge,
		AllowCredentials: cors.AllowCredentials,
	}
}

func streamMetrics(m *metrics.HTTPMetrics) handlers.StreamMetrics {
	if m == nil {
		return nil
	}
	return m
}
