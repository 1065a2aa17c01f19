package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: postgres://file
nats:
  url: nats://file:4222
jwt:
  secret: s3cret
scoreboard:
  max_rounds: 12
  refresh_timeout: 3s
  session_idle_ttl: 5m
  migration_backend: river
rate_limit:
  rps: 5
`)
	t.Setenv("NATS_URL", "nats://env:4222")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file", cfg.Postgres.DSN)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL, "environment overrides the file")
	assert.Equal(t, 12, cfg.Scoreboard.MaxRounds)
	assert.Equal(t, 3*time.Second, cfg.Scoreboard.RefreshTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Scoreboard.SessionIdleTTL)
	assert.Equal(t, MigrationRiver, cfg.Scoreboard.MigrationBackend)
	assert.Equal(t, StoragePostgres, cfg.Scoreboard.Storage)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("SCOREBOARD_MAX_ROUNDS", "4")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 4, cfg.Scoreboard.MaxRounds)
	assert.Equal(t, StorageMemory, cfg.Scoreboard.Storage, "no DSN means in-memory storage")
	assert.Equal(t, MigrationInline, cfg.Scoreboard.MigrationBackend)
	assert.Equal(t, 24*time.Hour, cfg.JWT.DefaultTTL)
	assert.Equal(t, 30*time.Minute, cfg.Scoreboard.SessionIdleTTL)

	obs := ToObsConfig(cfg, "v1")
	assert.Equal(t, "scorecard", obs.ServiceName)
	assert.Equal(t, "text", obs.LogFormat)
	assert.Equal(t, "v1", obs.Version)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "no secret", yaml: "postgres:\n  dsn: x\n"},
		{name: "bad yaml", yaml: "postgres: [\n"},
		{name: "unknown storage", yaml: "jwt:\n  secret: s\nscoreboard:\n  storage: redis\n"},
		{name: "postgres without dsn", yaml: "jwt:\n  secret: s\nscoreboard:\n  storage: postgres\n"},
		{name: "river without postgres", yaml: "jwt:\n  secret: s\nscoreboard:\n  migration_backend: river\n"},
		{name: "unknown backend", yaml: "jwt:\n  secret: s\nscoreboard:\n  migration_backend: kafka\n"},
		{name: "bad duration", yaml: "jwt:\n  secret: s\n", env: map[string]string{"SCOREBOARD_REFRESH_TIMEOUT": "soon"}},
		{name: "bad burst", yaml: "jwt:\n  secret: s\n", env: map[string]string{"RATE_LIMIT_BURST": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
