package scoreboardservice

import (
	"context"
	"errors"
	"fmt"

	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// AddRound appends one empty round to the game. Pending edits are flushed
// first, best effort, so they are not lost to the round count write.
func (s *Session) AddRound(ctx context.Context) error {
	_, err := withTelemetry(s, ctx, "AddRound", func(ctx context.Context) (struct{}, error) {
		dirty, err := s.checkRoundsChange(ctx, func() error {
			if s.game.RoundCount >= s.game.EffectiveMaxRounds() {
				return fmt.Errorf("%w: %d of %d", ErrRoundLimitReached, s.game.RoundCount, s.game.EffectiveMaxRounds())
			}
			return nil
		})
		if err != nil {
			return struct{}{}, err
		}
		if dirty {
			s.flushBeforeRoundChange(ctx)
		}

		s.mu.Lock()
		if err := s.checkEditorLocked(ctx); err != nil {
			s.mu.Unlock()
			return struct{}{}, err
		}
		if s.game.RoundCount >= s.game.EffectiveMaxRounds() {
			s.mu.Unlock()
			return struct{}{}, ErrRoundLimitReached
		}
		s.growLocked()
		grown := s.game.RoundCount
		game := s.game.Clone()
		s.mu.Unlock()

		updated, err := s.deps.Store.UpdateGame(ctx, game)
		if err != nil {
			s.mu.Lock()
			if s.loaded && s.game.RoundCount == grown {
				s.shrinkLocked(grown)
			}
			s.mu.Unlock()
			return struct{}{}, fmt.Errorf("%w: persist round count: %w", ErrStoreUnavailable, err)
		}
		s.adoptGameTimestamps(updated)

		s.logger.InfoContext(ctx, "Round added",
			attr.ExtractCorrelationID(ctx),
			attr.Int("round_count", grown),
		)
		s.publish(ctx, scoreboardevents.RoundsChangedV1, scoreboardevents.RoundsChangedPayloadV1{
			GameID:     s.gameID,
			RoundCount: grown,
		})
		return struct{}{}, nil
	})
	return err
}

// RemoveRound splices round (1-based) out of every array so later rounds move
// down by one, persists the round count and deletes the removed round's
// records. Records of later rounds keep their stored round numbers.
func (s *Session) RemoveRound(ctx context.Context, round int) error {
	_, err := withTelemetry(s, ctx, "RemoveRound", func(ctx context.Context) (struct{}, error) {
		check := func() error {
			if s.game.RoundCount <= 1 {
				return ErrLastRound
			}
			if round < 1 || round > s.game.RoundCount {
				return fmt.Errorf("%w: %d of %d", ErrRoundOutOfRange, round, s.game.RoundCount)
			}
			return nil
		}
		dirty, err := s.checkRoundsChange(ctx, check)
		if err != nil {
			return struct{}{}, err
		}
		if dirty {
			s.flushBeforeRoundChange(ctx)
		}

		s.mu.Lock()
		if err := s.checkEditorLocked(ctx); err != nil {
			s.mu.Unlock()
			return struct{}{}, err
		}
		if err := check(); err != nil {
			s.mu.Unlock()
			return struct{}{}, err
		}
		before := s.snapshotLocked()
		s.shrinkLocked(round)
		shrunk := s.game.RoundCount
		game := s.game.Clone()
		s.mu.Unlock()

		updated, err := s.deps.Store.UpdateGame(ctx, game)
		if err != nil {
			s.mu.Lock()
			if s.loaded && s.game.RoundCount == shrunk {
				s.restoreLocked(before)
			}
			s.mu.Unlock()
			return struct{}{}, fmt.Errorf("%w: persist round count: %w", ErrStoreUnavailable, err)
		}
		s.adoptGameTimestamps(updated)

		s.publish(ctx, scoreboardevents.RoundsChangedV1, scoreboardevents.RoundsChangedPayloadV1{
			GameID:       s.gameID,
			RoundCount:   shrunk,
			RemovedRound: round,
		})

		deleted, err := s.deleteRoundRecords(ctx, round)
		s.logger.InfoContext(ctx, "Round removed",
			attr.ExtractCorrelationID(ctx),
			attr.Int("round", round),
			attr.Int("round_count", shrunk),
			attr.Int("records_deleted", deleted),
		)
		return struct{}{}, err
	})
	return err
}

// checkRoundsChange runs the shared round-change preconditions plus check
// under mu and reports whether edits are pending.
func (s *Session) checkRoundsChange(ctx context.Context, check func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditorLocked(ctx); err != nil {
		return false, err
	}
	if err := check(); err != nil {
		return false, err
	}
	return s.dirty, nil
}

func (s *Session) flushBeforeRoundChange(ctx context.Context) {
	if _, err := s.save(ctx, SaveSilent); err != nil {
		s.logger.WarnContext(ctx, "Flush before round change failed",
			attr.ExtractCorrelationID(ctx),
			attr.Error(err),
		)
	}
}

// deleteRoundRecords removes every persisted record of round.
func (s *Session) deleteRoundRecords(ctx context.Context, round int) (int, error) {
	scores, err := s.deps.Store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: s.gameID})
	if err != nil {
		return 0, fmt.Errorf("%w: list scores of removed round: %w", ErrStoreUnavailable, err)
	}
	var (
		deleted int
		errs    []error
	)
	for _, sc := range scores {
		if sc.RoundNumber != round {
			continue
		}
		_, err := s.deps.Store.DeleteScore(ctx, sc)
		s.deps.Metrics.RecordRemoteMutation(ctx, MutationDelete, err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s round %d: %w", sc.PlayerID, sc.RoundNumber, err))
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("%w: %w", ErrPartialSave, errors.Join(errs...))
	}
	return deleted, nil
}

func (s *Session) adoptGameTimestamps(updated *scoreboardtypes.Game) {
	if updated == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && s.game.ID == updated.ID {
		s.game.UpdatedAt = updated.UpdatedAt
	}
}
