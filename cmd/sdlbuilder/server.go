package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/artpar/sdlbuilder/internal/shell/api"
	"github.com/artpar/sdlbuilder/internal/shell/diagnostics"
	"github.com/artpar/sdlbuilder/internal/shell/metrics"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitInputError      = 2
	ExitTransformError  = 3
	ExitHTTPServerError = 4
	ExitUsageError      = 64
)

// =============================================================================
// Server
// =============================================================================

// Server serves the SDL builder API.
type Server struct {
	config     *Config
	httpServer *http.Server
	metrics    *metrics.Metrics
	closeDiag  func()
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	var m *metrics.Metrics
	var base []transform.Reporter
	if cfg.Server.Metrics {
		m = metrics.New()
		base = append(base, m)
	}

	t, closeDiag := newTransformer(cfg, logger, base...)

	handler := api.NewHandler(api.Config{
		Transformer:  t,
		Metrics:      m,
		Logger:       logger,
		Version:      Version,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		metrics:    m,
		closeDiag:  closeDiag,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"metrics", s.metrics != nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.closeDiag()
		return &CommandError{
			Op:       "serve",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Flush queued diagnostics
	s.closeDiag()

	s.logger.Info("shutdown complete")
	return nil
}

// newTransformer builds a Transformer reporting unexpected failures to base
// and to the configured diagnostics backends. The returned func flushes them.
func newTransformer(cfg *Config, logger *slog.Logger, base ...transform.Reporter) (*transform.Transformer, func()) {
	reporter, closer := diagnostics.New(diagnostics.Config{
		RollbarToken: cfg.Diagnostics.RollbarToken,
		Environment:  cfg.Diagnostics.Environment,
		CodeVersion:  Version,
	}, logger, base...)

	t := transform.New(
		transform.WithReporter(reporter),
		transform.WithLogger(logger),
	)
	return t, closer
}

// =============================================================================
// Command Error
// =============================================================================

// CommandError carries the exit code of a failed command.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
