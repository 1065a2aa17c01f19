package scoreboardqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Migrator re-keys the scores named by a job.
type Migrator interface {
	Migrate(ctx context.Context, job scoreboardservice.MigrationJob) (scoreboardservice.MigrationResult, error)
}

// ScoreMigrationWorker runs score migrations pulled from the queue.
type ScoreMigrationWorker struct {
	river.WorkerDefaults[ScoreMigrationJob]
	migrator Migrator
	logger   *slog.Logger
}

// NewScoreMigrationWorker creates a worker over migrator.
func NewScoreMigrationWorker(logger *slog.Logger, migrator Migrator) *ScoreMigrationWorker {
	return &ScoreMigrationWorker{migrator: migrator, logger: logger}
}

// Timeout bounds a single migration attempt.
func (w *ScoreMigrationWorker) Timeout(*river.Job[ScoreMigrationJob]) time.Duration {
	return time.Minute
}

// Work migrates the job's scores. A partial migration is returned as an error
// so River retries it; records already moved are found under the new id on
// the next attempt and are left alone.
func (w *ScoreMigrationWorker) Work(ctx context.Context, job *river.Job[ScoreMigrationJob]) error {
	logger := w.logger.With(
		attr.GameID("game_id", job.Args.GameID),
		attr.PlayerID("from", job.Args.From),
		attr.PlayerID("to", job.Args.To),
		attr.Int64("job_id", job.ID),
		attr.Int("attempt", job.Attempt),
	)

	result, err := w.migrator.Migrate(ctx, job.Args.migrationJob())
	if err != nil {
		logger.Warn("Score migration attempt failed",
			attr.Int("updated", result.Updated),
			attr.Int("recreated", result.Recreated),
			attr.Int("failed", result.Failed),
			attr.Error(err))
		return fmt.Errorf("score migration for game %s: %w", job.Args.GameID, err)
	}

	logger.Info("Score migration completed",
		attr.Int("updated", result.Updated),
		attr.Int("recreated", result.Recreated))
	return nil
}
