package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds what is needed to build the observability stack.
type Config struct {
	ServiceName    string
	Environment    string
	Version        string
	LogFormat      string // json|text
	LogLevel       string
	MetricsAddress string
	TracingEnabled bool
}

// Provider bundles the logger, tracer and metrics registry handed to modules.
type Provider struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Registry *prometheus.Registry

	metricsServer *http.Server
}

// Init builds a Provider. The metrics endpoint is only served when an address is configured.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	logger := NewLogger(os.Stdout, cfg).With(
		slog.String("service", cfg.ServiceName),
		slog.String("env", cfg.Environment),
		slog.String("version", cfg.Version),
	)

	var tracer trace.Tracer
	if cfg.TracingEnabled {
		tracer = otel.Tracer(cfg.ServiceName)
	} else {
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Provider{Logger: logger, Tracer: tracer, Registry: registry}

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		p.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := p.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "metrics server stopped", slog.String("error", err.Error()))
			}
		}()
		logger.InfoContext(ctx, "metrics endpoint started", slog.String("address", cfg.MetricsAddress))
	}

	return p, nil
}

// Shutdown stops the metrics endpoint.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.metricsServer == nil {
		return nil
	}
	if err := p.metricsServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	return nil
}

// NewLogger returns a JSON logger, or a coloured text logger when LogFormat is "text".
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoOpLogger discards everything. Used in tests.
var NoOpLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
