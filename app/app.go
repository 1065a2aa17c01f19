// Package app assembles the scorecard server from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scorecard-club/scorecard/app/eventbus"
	leaderboardservice "github.com/scorecard-club/scorecard/app/modules/leaderboard/application"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	scoreboardhandlers "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/handlers"
	scoreboardmemstore "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/memstore"
	scoreboardmetrics "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/metrics"
	scoreboardqueue "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/queue"
	scoreboarddb "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/repositories"
	scoreboardmigrations "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/repositories/migrations"
	"github.com/scorecard-club/scorecard/config"
	"github.com/scorecard-club/scorecard/internal/observability"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.opentelemetry.io/otel/trace"
)

// StreamName is the JetStream stream retaining scoreboard events.
const StreamName = "SCOREBOARD"

// gameStore is what the server needs from a storage backend.
type gameStore interface {
	scoreboardservice.RecordStore
	scoreboardservice.CelebrationStore
	CreateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
}

// Options tweak New. The zero value is ready for production use.
type Options struct {
	Version string
	// Migrate applies the database schema before serving.
	Migrate bool
}

// App owns every long-lived component of the server.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Registry *prometheus.Registry

	Store       gameStore
	EventBus    *eventbus.EventBus
	Sessions    *scoreboardservice.SessionManager
	Leaderboard *leaderboardservice.DataManager
	Auth        *scoreboardhandlers.TokenAuthenticator

	obs   *observability.Provider
	db    *bun.DB
	queue *scoreboardqueue.Service
	async *scoreboardservice.AsyncDispatcher
	hooks []hook
}

// New initializes the application with the necessary services and configuration.
// On error every component created so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	obs, err := observability.Init(ctx, config.ToObsConfig(cfg, opts.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	app = &App{
		Config:   cfg,
		Logger:   obs.Logger,
		Tracer:   obs.Tracer,
		Registry: obs.Registry,
		obs:      obs,
	}
	app.onShutdown("observability", obs.Shutdown)
	defer func() {
		if err != nil {
			_ = app.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	if err := app.initStore(ctx, opts.Migrate); err != nil {
		return nil, err
	}
	if err := app.initEventBus(ctx); err != nil {
		return nil, err
	}

	metrics, err := scoreboardmetrics.NewPrometheusMetrics(app.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register scoreboard metrics: %w", err)
	}

	dispatcher, err := app.initDispatcher(ctx, metrics)
	if err != nil {
		return nil, err
	}

	app.Auth = scoreboardhandlers.NewTokenAuthenticator(cfg.JWT.Secret)
	app.Sessions = scoreboardservice.NewSessionManager(scoreboardservice.Deps{
		Store:          app.Store,
		Users:          app.Auth,
		Celebrations:   app.Store,
		Dispatcher:     dispatcher,
		Events:         app.EventBus,
		Feedback:       logFeedback{logger: app.Logger},
		Logger:         app.Logger,
		Metrics:        metrics,
		Tracer:         app.Tracer,
		RefreshTimeout: cfg.Scoreboard.RefreshTimeout,
	}).WithIdleTTL(cfg.Scoreboard.SessionIdleTTL)

	app.Leaderboard = leaderboardservice.NewDataManager(app.Store, app.EventBus, app.Logger)
	app.onShutdown("leaderboard", func(context.Context) error { return app.Leaderboard.Close() })

	app.Logger.InfoContext(ctx, "Application initialized",
		attr.String("storage", cfg.Scoreboard.Storage),
		attr.String("migration_backend", cfg.Scoreboard.MigrationBackend),
		attr.Bool("nats", cfg.NATS.URL != ""),
	)
	return app, nil
}

func (app *App) initStore(ctx context.Context, runMigrations bool) error {
	if app.Config.Scoreboard.Storage == config.StorageMemory {
		app.Logger.WarnContext(ctx, "Using in-memory storage; games are lost on restart")
		app.Store = scoreboardmemstore.New()
		return nil
	}

	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(app.Config.Postgres.DSN)))
	app.db = bun.NewDB(pgdb, pgdialect.New())
	app.onShutdown("database", func(context.Context) error { return app.db.Close() })

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		migrator := migrate.NewMigrator(app.db, scoreboardmigrations.Migrations)
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to init migrations: %w", err)
		}
		group, err := migrator.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if !group.IsZero() {
			app.Logger.InfoContext(ctx, "Database migrated", attr.String("group", group.String()))
		}
	}
	app.Store = scoreboarddb.NewStore(scoreboarddb.NewRepository(app.db))
	return nil
}

func (app *App) initEventBus(ctx context.Context) error {
	if app.Config.NATS.URL == "" {
		app.EventBus = eventbus.NewInMemory(app.Logger)
	} else {
		bus, err := eventbus.New(ctx, eventbus.Config{
			URL:        app.Config.NATS.URL,
			NKeySeed:   app.Config.NATS.NKeySeed,
			QueueGroup: app.Config.NATS.QueueGroup,
		}, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect event bus: %w", err)
		}
		app.EventBus = bus
	}
	app.onShutdown("event bus", func(context.Context) error { return app.EventBus.Close() })

	if err := app.EventBus.Instrument(app.Registry); err != nil {
		return fmt.Errorf("failed to instrument event bus: %w", err)
	}
	if err := app.EventBus.EnsureStream(ctx, StreamName, "scoreboard.>"); err != nil {
		return fmt.Errorf("failed to ensure %s stream: %w", StreamName, err)
	}
	return nil
}

func (app *App) initDispatcher(ctx context.Context, metrics scoreboardservice.Metrics) (scoreboardservice.MigrationDispatcher, error) {
	migrator := scoreboardservice.NewScoreMigrator(app.Store, app.Logger, metrics)
	switch app.Config.Scoreboard.MigrationBackend {
	case config.MigrationRiver:
		q, err := scoreboardqueue.NewService(ctx, app.Config.Postgres.DSN, migrator, app.Logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration queue: %w", err)
		}
		app.queue = q
		app.onShutdown("migration queue", q.Stop)
		return q, nil
	case config.MigrationAsync:
		app.async = scoreboardservice.NewAsyncDispatcher(migrator, app.Logger)
		app.onShutdown("background migrations", func(context.Context) error {
			app.async.Wait()
			return nil
		})
		return app.async, nil
	default:
		return scoreboardservice.NewInlineDispatcher(migrator), nil
	}
}

// logFeedback records interactive save outcomes; the HTTP response carries
// the report to the caller.
type logFeedback struct {
	logger *slog.Logger
}

func (f logFeedback) SaveSucceeded(ctx context.Context, report scoreboardservice.SaveReport) {
	f.logger.InfoContext(ctx, "Scoreboard saved",
		attr.ExtractCorrelationID(ctx),
		attr.Int("created", report.Created),
		attr.Int("updated", report.Updated),
		attr.Int("deleted", report.Deleted),
	)
}

func (f logFeedback) SaveFailed(ctx context.Context, report scoreboardservice.SaveReport, err error) {
	f.logger.WarnContext(ctx, "Scoreboard save failed",
		attr.ExtractCorrelationID(ctx),
		attr.Int("mutations", report.Mutations()),
		attr.Int("failures", len(report.Failures)),
		attr.Error(err),
	)
}
