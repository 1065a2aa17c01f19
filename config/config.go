package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scorecard-club/scorecard/internal/observability"
)

// Migration backends for renamed-player score moves.
const (
	MigrationInline = "inline"
	MigrationAsync  = "async"
	MigrationRiver  = "river"
)

// Storage backends for games and scores.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	HTTP          HTTPConfig          `yaml:"http"`
	JWT           JWTConfig           `yaml:"jwt"`
	Observability ObservabilityConfig `yaml:"observability"`
	Scoreboard    ScoreboardConfig    `yaml:"scoreboard"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration. An empty URL selects the in-process bus.
type NATSConfig struct {
	URL        string `yaml:"url"`
	NKeySeed   string `yaml:"nkey_seed"`
	QueueGroup string `yaml:"queue_group"`
}

// HTTPConfig holds the API listener configuration.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	Environment    string `yaml:"environment"`
	LogFormat      string `yaml:"log_format"` // json|text
	LogLevel       string `yaml:"log_level"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// ScoreboardConfig tunes the scoreboard sessions.
type ScoreboardConfig struct {
	MaxRounds        int           `yaml:"max_rounds"`
	RefreshTimeout   time.Duration `yaml:"refresh_timeout"`
	SessionIdleTTL   time.Duration `yaml:"session_idle_ttl"`
	MigrationBackend string        `yaml:"migration_backend"` // inline|async|river
	Storage          string        `yaml:"storage"`           // postgres|memory
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoadConfig loads the configuration from a YAML file, falling back to the
// environment when the file does not exist. Environment variables override
// file values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return loadConfigFromEnv()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFromEnv loads the configuration from environment variables.
func loadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_NKEY_SEED"); v != "" {
		cfg.NATS.NKeySeed = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("JWT_DEFAULT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_DEFAULT_TTL value: %w", err)
		}
		cfg.JWT.DefaultTTL = d
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true"
	}
	if v := os.Getenv("SCOREBOARD_MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCOREBOARD_MAX_ROUNDS value: %w", err)
		}
		cfg.Scoreboard.MaxRounds = n
	}
	if v := os.Getenv("SCOREBOARD_REFRESH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCOREBOARD_REFRESH_TIMEOUT value: %w", err)
		}
		cfg.Scoreboard.RefreshTimeout = d
	}
	if v := os.Getenv("SCOREBOARD_SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCOREBOARD_SESSION_IDLE_TTL value: %w", err)
		}
		cfg.Scoreboard.SessionIdleTTL = d
	}
	if v := os.Getenv("SCOREBOARD_MIGRATION_BACKEND"); v != "" {
		cfg.Scoreboard.MigrationBackend = v
	}
	if v := os.Getenv("SCOREBOARD_STORAGE"); v != "" {
		cfg.Scoreboard.Storage = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS value: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST value: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if c.JWT.DefaultTTL <= 0 {
		c.JWT.DefaultTTL = 24 * time.Hour
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "scorecard"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "json"
	}
	if c.Scoreboard.MaxRounds <= 0 {
		c.Scoreboard.MaxRounds = 8
	}
	if c.Scoreboard.RefreshTimeout <= 0 {
		c.Scoreboard.RefreshTimeout = 10 * time.Second
	}
	if c.Scoreboard.SessionIdleTTL <= 0 {
		c.Scoreboard.SessionIdleTTL = 30 * time.Minute
	}
	if c.Scoreboard.Storage == "" {
		c.Scoreboard.Storage = StoragePostgres
		if c.Postgres.DSN == "" {
			c.Scoreboard.Storage = StorageMemory
		}
	}
	if c.Scoreboard.MigrationBackend == "" {
		c.Scoreboard.MigrationBackend = MigrationInline
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 40
	}
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable not set")
	}
	switch c.Scoreboard.Storage {
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("DATABASE_URL environment variable not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown scoreboard storage %q", c.Scoreboard.Storage)
	}
	switch c.Scoreboard.MigrationBackend {
	case MigrationInline, MigrationAsync:
	case MigrationRiver:
		if c.Scoreboard.Storage != StoragePostgres {
			return errors.New("the river migration backend requires postgres storage")
		}
	default:
		return fmt.Errorf("unknown migration backend %q", c.Scoreboard.MigrationBackend)
	}
	return nil
}

// ToObsConfig maps the observability section onto the provider config.
func ToObsConfig(appCfg *Config, version string) observability.Config {
	return observability.Config{
		ServiceName:    "scorecard",
		Environment:    appCfg.Observability.Environment,
		Version:        version,
		LogFormat:      appCfg.Observability.LogFormat,
		LogLevel:       appCfg.Observability.LogLevel,
		MetricsAddress: appCfg.Observability.MetricsAddress,
		TracingEnabled: appCfg.Observability.TracingEnabled,
	}
}
