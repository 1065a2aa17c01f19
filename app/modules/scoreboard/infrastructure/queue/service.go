package scoreboardqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Service dispatches score migrations to a River queue and runs the worker
// that drains it.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics scoreboardservice.Metrics
}

var _ scoreboardservice.MigrationDispatcher = (*Service)(nil)

// NewService connects to dsn and registers the score migration worker.
func NewService(ctx context.Context, dsn string, migrator Migrator, logger *slog.Logger, metrics scoreboardservice.Metrics) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("operation", "new_scoreboard_queue_service"),
		attr.String("component", "river_queue"),
	)
	if metrics == nil {
		metrics = scoreboardservice.NoOpMetrics{}
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		ctxLogger.Error("Failed to ping database for River", attr.Error(err))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewScoreMigrationWorker(ctxLogger, migrator))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			QueueName: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", attr.Error(err))
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	ctxLogger.Info("Scoreboard queue service initialized")
	return &Service{client: client, pool: pool, logger: ctxLogger, metrics: metrics}, nil
}

// Migrate applies River's own schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("failed to run River migrations: %w", err)
	}
	return nil
}

// Start runs River's schema migrations, then starts the workers.
func (s *Service) Start(ctx context.Context) error {
	if err := Migrate(ctx, s.pool); err != nil {
		return err
	}
	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", attr.Error(err))
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.logger.Info("Scoreboard queue service started")
	return nil
}

// Stop waits for running jobs and closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	defer s.pool.Close()
	if err := s.client.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Failed to stop River client", attr.Error(err))
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.logger.Info("Scoreboard queue service stopped")
	return nil
}

// Dispatch enqueues the migration.
func (s *Service) Dispatch(ctx context.Context, job scoreboardservice.MigrationJob) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "dispatch_migration", job.GameID)

	res, err := s.client.Insert(ctx, newScoreMigrationJob(job), insertOpts())
	if err != nil {
		s.metrics.RecordOperationFailure(ctx, "dispatch_migration", job.GameID)
		s.logger.Error("Failed to enqueue score migration",
			attr.GameID("game_id", job.GameID),
			attr.Error(err))
		return fmt.Errorf("failed to enqueue score migration: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "dispatch_migration", job.GameID)
	s.metrics.RecordOperationDuration(ctx, "dispatch_migration", time.Since(start))
	s.logger.Info("Score migration enqueued",
		attr.GameID("game_id", job.GameID),
		attr.Int64("job_id", res.Job.ID))
	return nil
}

// HealthCheck pings the queue database.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("queue service health check failed: %w", err)
	}
	return nil
}

func insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       QueueName,
		MaxAttempts: 5,
	}
}
