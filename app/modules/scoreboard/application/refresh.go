package scoreboardservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
	"golang.org/x/sync/errgroup"
)

// ErrRefreshSuperseded is returned by a refresh that was cancelled by a newer one.
var ErrRefreshSuperseded = errors.New("refresh superseded by a newer refresh")

// withTimeout races fn against a timer. The loser is cancelled: on timeout
// fn's context is cancelled and ErrRefreshTimeout is returned without waiting.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrRefreshTimeout, d)
		}
		return out.value, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrRefreshTimeout, d)
		}
		return zero, ctx.Err()
	}
}

type fetched struct {
	game   *scoreboardtypes.Game
	scores []scoreboardtypes.Score
	users  []scoreboardtypes.User
}

// Refresh reloads the game, its scores and the user directory, then swaps
// them into the session at once. Pending edits are kept. A refresh started
// later cancels this one. On timeout or cancellation the prior state is left
// untouched; if the game is gone the session is cleared and ErrGameGone is
// returned.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := withTelemetry(s, ctx, "Refresh", func(ctx context.Context) (struct{}, error) {
		s.mu.Lock()
		s.refreshSeq++
		seq := s.refreshSeq
		if s.cancelRefresh != nil {
			s.cancelRefresh()
		}
		ctx, cancel := context.WithCancel(ctx)
		s.cancelRefresh = cancel
		s.mu.Unlock()
		defer cancel()

		data, err := withTimeout(ctx, s.deps.RefreshTimeout, s.fetch)

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.refreshSeq {
			return struct{}{}, ErrRefreshSuperseded
		}
		s.cancelRefresh = nil

		switch {
		case errors.Is(err, ErrNotFound):
			s.resetLocked()
			return struct{}{}, ErrGameGone
		case err != nil:
			return struct{}{}, err
		case data.game == nil:
			s.resetLocked()
			return struct{}{}, ErrGameGone
		}

		s.applyLocked(ctx, data)
		s.logger.DebugContext(ctx, "Scoreboard refreshed",
			attr.ExtractCorrelationID(ctx),
			attr.Int("players", len(data.game.PlayerIDs)),
			attr.Int("rounds", data.game.RoundCount),
			attr.Int("scores", len(data.scores)),
		)
		return struct{}{}, nil
	})
	return err
}

func (s *Session) fetch(ctx context.Context) (fetched, error) {
	var out fetched
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		game, err := s.deps.Store.GetGame(gctx, s.gameID)
		if err != nil {
			return fmt.Errorf("get game: %w", err)
		}
		out.game = game
		return nil
	})
	g.Go(func() error {
		scores, err := s.deps.Store.ListScores(gctx, scoreboardtypes.ScoreFilter{GameID: s.gameID})
		if err != nil {
			return fmt.Errorf("list scores: %w", err)
		}
		out.scores = scores
		return nil
	})
	g.Go(func() error {
		// Names fall back to the raw ids when the directory is unavailable.
		users, err := s.deps.Store.ListUsers(gctx)
		if err != nil {
			s.logger.WarnContext(gctx, "Failed to list users",
				attr.ExtractCorrelationID(gctx),
				attr.Error(err),
			)
			return nil
		}
		out.users = users
		return nil
	})
	if err := g.Wait(); err != nil {
		return fetched{}, err
	}
	return out, nil
}

// applyLocked replaces game, names, shadow and entered-set from fetched
// records and overlays the pending buffer. mu must be held.
func (s *Session) applyLocked(ctx context.Context, data fetched) {
	game := data.game.Clone()
	if game.RoundCount < 1 {
		game.RoundCount = 1
	}

	rules, err := scoreboardtypes.ParseCustomRules(game.CustomRules)
	if err != nil {
		s.logger.WarnContext(ctx, "Ignoring malformed custom rules",
			attr.ExtractCorrelationID(ctx),
			attr.Error(err),
		)
		rules = scoreboardtypes.RuleSet{}
	}

	shadow := groupScores(data.scores, game)
	entered := make(map[cellKey]struct{}, len(data.scores))
	for _, sc := range data.scores {
		if _, ok := shadow[sc.PlayerID]; ok && sc.RoundNumber >= 1 && sc.RoundNumber <= game.RoundCount {
			entered[cellKey{Player: sc.PlayerID, Round: sc.RoundNumber}] = struct{}{}
		}
	}

	buffer := make(map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, len(s.buffer))
	for id, cells := range s.buffer {
		if _, ok := shadow[id]; !ok {
			continue
		}
		cells = resizeCells(cells, game.RoundCount)
		buffer[id] = cells
		for i, c := range cells {
			key := cellKey{Player: id, Round: i + 1}
			if c.IsEmpty() {
				delete(entered, key)
			} else {
				entered[key] = struct{}{}
			}
		}
	}

	s.game = game
	s.rules = rules
	s.names = resolveNames(game, data.users)
	s.shadow = shadow
	s.entered = entered
	s.buffer = buffer
	s.dirty = len(buffer) > 0
	s.loaded = true
	s.reprojectLocked()
}

// resolveNames maps guest and authenticated players to their directory names.
func resolveNames(game *scoreboardtypes.Game, users []scoreboardtypes.User) map[scoreboardtypes.PlayerID]string {
	byID := make(map[scoreboardtypes.UserID]scoreboardtypes.User, len(users)*2)
	for _, u := range users {
		byID[u.ID] = u
		if u.Email != "" {
			byID[scoreboardtypes.UserID(u.Email)] = u
		}
	}
	names := make(map[scoreboardtypes.PlayerID]string, len(game.PlayerIDs))
	for _, id := range game.PlayerIDs {
		identity := scoreboardtypes.ParseIdentity(id)
		if identity.Kind == scoreboardtypes.Anonymous {
			continue
		}
		if u, ok := byID[identity.UserID()]; ok && u.Name() != "" {
			names[id] = u.Name()
			continue
		}
		names[id] = identity.DisplayName()
	}
	return names
}
