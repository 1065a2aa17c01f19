package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scorecard-club/scorecard/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		JWT:  config.JWTConfig{Secret: "test", DefaultTTL: time.Hour},
		Observability: config.ObservabilityConfig{
			LogFormat: "json",
			LogLevel:  "error",
		},
		Scoreboard: config.ScoreboardConfig{
			MaxRounds:        4,
			RefreshTimeout:   time.Second,
			MigrationBackend: config.MigrationAsync,
			Storage:          config.StorageMemory,
		},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
	}
}

func TestApp_InMemoryServer(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), Options{Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })
	require.NoError(t, a.Leaderboard.Start(ctx))

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := a.Auth.IssueToken("host", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/games",
		strings.NewReader(`{"players":["Ann","Bo"],"round_count":1}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdown_RunsHooksInReverse(t *testing.T) {
	a := &App{}
	var order []string
	a.onShutdown("first", func(context.Context) error { order = append(order, "first"); return nil })
	a.onShutdown("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })
	a.onShutdown("third", func(context.Context) error { order = append(order, "third"); return nil })

	err := a.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	require.NoError(t, a.Shutdown(context.Background()), "hooks run once")
}
