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

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/engine"
	"mercator-hq/meter/pkg/telemetry/health"
	"mercator-hq/meter/pkg/telemetry/metrics"
)

// VersionInfo is served at /version.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Options configures a Server. Config and Engine are required.
type Options struct {
	Config *config.ServerConfig
	Engine *engine.Engine

	// Health serves /health/*. A checker without registered checks is used
	// when nil.
	Health *health.Checker

	// Metrics is served at MetricsPath and records per-route request
	// metrics. Nil disables both.
	Metrics     *metrics.Collector
	MetricsPath string

	Version VersionInfo
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	config      *config.ServerConfig
	engine      *engine.Engine
	health      *health.Checker
	metrics     *metrics.Collector
	metricsPath string
	version     VersionInfo
	logger      *slog.Logger
	now         func() time.Time

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// New creates a server. Routes are built once, so Handler may be used
// without Start.
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		config:      opts.Config,
		engine:      opts.Engine,
		health:      opts.Health,
		metrics:     opts.Metrics,
		metricsPath: opts.MetricsPath,
		version:     opts.Version,
		logger:      opts.Logger.With("component", "server"),
		now:         opts.Now,
	}
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the bound listener address once Start has begun serving.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start listens and serves until ctx is canceled or the listener fails.
// On cancellation it shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server within ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("API server stopped")
	})

	return shutdownErr
}
