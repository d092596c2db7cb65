package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer_Routes(t *testing.T) {
	s, err := NewServer(testConfig(t), discardLogger())
	require.NoError(t, err)

	for _, path := range []string{"/health", "/metrics", "/openapi.json", "/api/v1/sdl/defaults"} {
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Metrics = false

	s, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, s.metrics)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s, err := NewServer(testConfig(t), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &CommandError{Op: "serve", Err: inner, ExitCode: ExitHTTPServerError}

	assert.Equal(t, "serve: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
