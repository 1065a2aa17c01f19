package scoreboardservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Complete flushes pending edits, then marks a fully scored game as completed
// and publishes the outcome.
func (s *Session) Complete(ctx context.Context) (scoreboardtypes.Outcome, error) {
	return withTelemetry(s, ctx, "Complete", func(ctx context.Context) (scoreboardtypes.Outcome, error) {
		s.mu.Lock()
		if err := s.checkEditorLocked(ctx); err != nil {
			s.mu.Unlock()
			return scoreboardtypes.Outcome{}, err
		}
		dirty := s.dirty
		s.mu.Unlock()

		if dirty {
			if _, err := s.save(ctx, SaveSilent); err != nil {
				return scoreboardtypes.Outcome{}, fmt.Errorf("save before completing: %w", err)
			}
		}

		s.mu.Lock()
		if err := s.checkEditorLocked(ctx); err != nil {
			s.mu.Unlock()
			return scoreboardtypes.Outcome{}, err
		}
		if !s.isCompleteLocked() {
			s.mu.Unlock()
			return scoreboardtypes.Outcome{}, ErrNotComplete
		}
		outcome := ResolveWinner(sortedRows(s.game, s.rows, s.names), s.game.EffectiveWinCondition())
		game := s.game.Clone()
		game.Status = scoreboardtypes.GameStatusCompleted
		s.mu.Unlock()

		updated, err := s.deps.Store.UpdateGame(ctx, game)
		if err != nil {
			return scoreboardtypes.Outcome{}, fmt.Errorf("%w: persist completion: %w", ErrStoreUnavailable, err)
		}

		s.mu.Lock()
		if s.loaded {
			s.game.Status = scoreboardtypes.GameStatusCompleted
		}
		s.mu.Unlock()
		s.adoptGameTimestamps(updated)

		s.logger.InfoContext(ctx, "Game completed",
			attr.ExtractCorrelationID(ctx),
			attr.Any("winners", outcome.Winners),
			attr.Int("winning_score", outcome.WinningScore),
			attr.Bool("tie", outcome.IsTie),
		)
		s.publish(ctx, scoreboardevents.GameCompletedV1, scoreboardevents.GameCompletedPayloadV1{
			GameID:       s.gameID,
			HostUserID:   game.HostUserID,
			Winners:      outcome.Winners,
			WinningScore: outcome.WinningScore,
			IsTie:        outcome.IsTie,
			WinCondition: game.EffectiveWinCondition(),
			CompletedAt:  time.Now().UTC(),
		})
		return outcome, nil
	})
}

// ShouldCelebrate returns true exactly once per completed game.
func (s *Session) ShouldCelebrate(ctx context.Context) (bool, error) {
	return withTelemetry(s, ctx, "ShouldCelebrate", func(ctx context.Context) (bool, error) {
		s.mu.Lock()
		completed := s.loaded && s.game.Status == scoreboardtypes.GameStatusCompleted
		s.mu.Unlock()
		if !completed || s.deps.Celebrations == nil {
			return false, nil
		}

		seen, err := s.deps.Celebrations.HasCelebrated(ctx, s.gameID)
		if err != nil {
			return false, fmt.Errorf("load celebration flag: %w", err)
		}
		if seen {
			return false, nil
		}
		if err := s.deps.Celebrations.MarkCelebrated(ctx, s.gameID); err != nil {
			return false, fmt.Errorf("save celebration flag: %w", err)
		}
		return true, nil
	})
}

// DeleteGame removes every score of the game and then the game itself. If a
// score cannot be deleted the game is kept so the call can be retried.
func (s *Session) DeleteGame(ctx context.Context) error {
	_, err := withTelemetry(s, ctx, "DeleteGame", func(ctx context.Context) (struct{}, error) {
		s.mu.Lock()
		if err := s.checkHostLocked(ctx); err != nil {
			s.mu.Unlock()
			return struct{}{}, err
		}
		game := s.game.Clone()
		s.mu.Unlock()

		scores, err := s.deps.Store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: s.gameID})
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: list scores: %w", ErrStoreUnavailable, err)
		}
		var errs []error
		for _, sc := range scores {
			_, err := s.deps.Store.DeleteScore(ctx, sc)
			s.deps.Metrics.RecordRemoteMutation(ctx, MutationDelete, err == nil)
			if err != nil && !errors.Is(err, ErrNotFound) {
				errs = append(errs, fmt.Errorf("delete %s round %d: %w", sc.PlayerID, sc.RoundNumber, err))
			}
		}
		if len(errs) > 0 {
			return struct{}{}, fmt.Errorf("%w: %w", ErrPartialSave, errors.Join(errs...))
		}

		if _, err := s.deps.Store.DeleteGame(ctx, game); err != nil && !errors.Is(err, ErrNotFound) {
			return struct{}{}, fmt.Errorf("%w: delete game: %w", ErrStoreUnavailable, err)
		}

		s.mu.Lock()
		s.resetLocked()
		s.mu.Unlock()

		s.logger.InfoContext(ctx, "Game deleted",
			attr.ExtractCorrelationID(ctx),
			attr.Int("scores_deleted", len(scores)),
		)
		s.publish(ctx, scoreboardevents.GameDeletedV1, scoreboardevents.GameDeletedPayloadV1{GameID: s.gameID})
		return struct{}{}, nil
	})
	return err
}
