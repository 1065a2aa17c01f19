package scoreboardservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// MigrationJob moves every score of From to To within one game.
type MigrationJob struct {
	GameID scoreboardtypes.GameID   `json:"game_id"`
	From   scoreboardtypes.PlayerID `json:"from"`
	To     scoreboardtypes.PlayerID `json:"to"`
}

// MigrationResult counts how each record was moved.
type MigrationResult struct {
	Updated   int
	Recreated int
	Failed    int
}

// ScoreMigrator re-keys persisted scores after a rename.
type ScoreMigrator struct {
	store   RecordStore
	logger  *slog.Logger
	metrics Metrics
}

// NewScoreMigrator creates a migrator over store.
func NewScoreMigrator(store RecordStore, logger *slog.Logger, metrics Metrics) *ScoreMigrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &ScoreMigrator{store: store, logger: logger, metrics: metrics}
}

// Migrate updates the player id of every record in place. When the store
// rejects an update, the record is deleted and recreated under the new id
// with the same round and value.
func (m *ScoreMigrator) Migrate(ctx context.Context, job MigrationJob) (MigrationResult, error) {
	var result MigrationResult
	logger := m.logger.With(
		attr.GameID("game_id", job.GameID),
		attr.PlayerID("from", job.From),
		attr.PlayerID("to", job.To),
	)

	scores, err := m.store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: job.GameID, PlayerID: job.From})
	if err != nil {
		return result, fmt.Errorf("%w: list scores to migrate: %w", ErrStoreUnavailable, err)
	}

	var errs []error
	for _, sc := range scores {
		moved := sc
		moved.PlayerID = job.To
		_, err := m.store.UpdateScore(ctx, moved)
		m.metrics.RecordRemoteMutation(ctx, MutationUpdate, err == nil)
		if err == nil {
			result.Updated++
			continue
		}

		logger.WarnContext(ctx, "In-place score migration rejected, recreating record",
			attr.ExtractCorrelationID(ctx),
			attr.Int("round", sc.RoundNumber),
			attr.Error(err),
		)
		if err := m.recreate(ctx, sc, job.To); err != nil {
			result.Failed++
			logger.ErrorContext(ctx, "Score migration failed",
				attr.ExtractCorrelationID(ctx),
				attr.Int("round", sc.RoundNumber),
				attr.Int("score", sc.Score),
				attr.Error(err),
			)
			errs = append(errs, fmt.Errorf("round %d: %w", sc.RoundNumber, err))
			continue
		}
		result.Recreated++
	}

	logger.InfoContext(ctx, "Score migration finished",
		attr.ExtractCorrelationID(ctx),
		attr.Int("updated", result.Updated),
		attr.Int("recreated", result.Recreated),
		attr.Int("failed", result.Failed),
	)
	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrPartialSave, errors.Join(errs...))
	}
	return result, nil
}

func (m *ScoreMigrator) recreate(ctx context.Context, old scoreboardtypes.Score, to scoreboardtypes.PlayerID) error {
	_, err := m.store.DeleteScore(ctx, old)
	m.metrics.RecordRemoteMutation(ctx, MutationDelete, err == nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete old record: %w", err)
	}
	fresh := scoreboardtypes.Score{
		ID:          scoreboardtypes.ScoreID(old.GameID, to, old.RoundNumber),
		GameID:      old.GameID,
		PlayerID:    to,
		RoundNumber: old.RoundNumber,
		Score:       old.Score,
		Owner:       old.Owner,
	}
	_, err = m.store.CreateScore(ctx, fresh)
	m.metrics.RecordRemoteMutation(ctx, MutationCreate, err == nil)
	if err != nil {
		return fmt.Errorf("create new record: %w", err)
	}
	return nil
}

// InlineDispatcher migrates synchronously within Dispatch.
type InlineDispatcher struct {
	migrator *ScoreMigrator
}

func NewInlineDispatcher(migrator *ScoreMigrator) *InlineDispatcher {
	return &InlineDispatcher{migrator: migrator}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job MigrationJob) error {
	_, err := d.migrator.Migrate(ctx, job)
	return err
}

// AsyncDispatcher migrates on a background goroutine that outlives the
// request context. Wait blocks until every dispatched job finished.
type AsyncDispatcher struct {
	migrator *ScoreMigrator
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewAsyncDispatcher(migrator *ScoreMigrator, logger *slog.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncDispatcher{migrator: migrator, logger: logger}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, job MigrationJob) error {
	ctx = context.WithoutCancel(ctx)
	d.wg.Go(func() {
		if _, err := d.migrator.Migrate(ctx, job); err != nil {
			d.logger.ErrorContext(ctx, "Background score migration failed",
				attr.ExtractCorrelationID(ctx),
				attr.GameID("game_id", job.GameID),
				attr.Error(err),
			)
		}
	})
	return nil
}

// Wait blocks until all dispatched migrations returned.
func (d *AsyncDispatcher) Wait() { d.wg.Wait() }
