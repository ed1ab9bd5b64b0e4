// ABOUTME: Server orchestrator that wires the engine, debug agent, ledger and HTTP status endpoints
// ABOUTME: Owns startup order and graceful shutdown for the debug-agent host

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

	"github.com/2389/debug-agent/internal/agent"
	"github.com/2389/debug-agent/internal/config"
	"github.com/2389/debug-agent/internal/echo"
	"github.com/2389/debug-agent/internal/store"
)

// Server orchestrates the debug-agent host components.
type Server struct {
	config     *config.Config
	engine     *echo.Engine
	agent      *agent.Agent
	store      store.Store // nil when no database is configured
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the session ledger, or returns nil when none is configured.
func initStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// New creates a new Server instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := echo.New(cfg.Engine.Version, logger.With("component", "engine"))

	opts := agent.Options{
		Name:              cfg.Agent.Name,
		Host:              cfg.Agent.Host,
		Port:              cfg.Agent.Port,
		EmbeddingHost:     cfg.Agent.EmbeddingHost,
		BindRetryInterval: cfg.Agent.BindRetryInterval,
		Engine:            engine,
		Logger:            logger.With("component", "debug-agent"),
	}
	if s != nil {
		opts.Recorder = s
	}

	dbgAgent, err := agent.New(opts)
	if err != nil {
		engine.Close()
		if s != nil {
			_ = s.Close()
		}
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	srv := &Server{
		config: cfg,
		engine: engine,
		agent:  dbgAgent,
		store:  s,
		logger: logger.With("component", "server"),
	}

	if cfg.HTTP.Addr != "" {
		srv.httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return srv, nil
}

// Agent returns the debug agent.
func (s *Server) Agent() *agent.Agent {
	return s.agent
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	// Status API
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/rejections", s.handleRejections)

	return mux
}

// startHTTP listens on the configured address and serves in a goroutine.
func (s *Server) startHTTP(errCh chan<- error) error {
	if s.httpServer == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return nil
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and the debug agent and blocks until the context
// is canceled. Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if err := s.startHTTP(errCh); err != nil {
		return errors.Join(err, s.gracefulShutdown())
	}

	if err := s.agent.Start(); err != nil {
		return errors.Join(fmt.Errorf("starting agent: %w", err), s.gracefulShutdown())
	}

	s.logger.Info("debug agent starting",
		"agent", s.agent.Name(),
		"addr", s.config.Agent.Addr(),
		"engine_version", s.engine.Version(),
	)

	serverErr := s.waitForShutdownSignal(ctx, errCh)
	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops every component. The agent goes first so the engine still
// sees the disconnect of an attached debugger. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down server")

		var errs []error
		if s.httpServer != nil {
			errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
		}

		s.agent.Shutdown()
		s.engine.Close()

		if s.store != nil {
			errs = appendCloseError(errs, "store close", s.store.Close())
		}

		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}
