package scoreboardservice

import (
	"context"
	"fmt"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// SetCell writes one pending value into the edit buffer. The player's buffer
// row is seeded from the projected row so values already on screen survive.
// Writing Empty un-marks the cell as entered; the next save deletes its record.
func (s *Session) SetCell(ctx context.Context, id scoreboardtypes.PlayerID, round int, value scoreboardtypes.Cell) error {
	_, err := withTelemetry(s, ctx, "SetCell", func(ctx context.Context) (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.checkEditorLocked(ctx); err != nil {
			return struct{}{}, err
		}
		if !s.game.HasPlayer(id) {
			return struct{}{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
		}
		if s.game.IsChild(id) {
			return struct{}{}, fmt.Errorf("%w: %s", ErrChildPlayer, id)
		}
		if round < 1 || round > s.game.RoundCount {
			return struct{}{}, fmt.Errorf("%w: %d of %d", ErrRoundOutOfRange, round, s.game.RoundCount)
		}

		row, ok := s.buffer[id]
		if !ok {
			row = s.rows[id]
		}
		row = resizeCells(row, s.game.RoundCount)
		row[round-1] = value
		s.buffer[id] = row

		key := cellKey{Player: id, Round: round}
		if value.IsEmpty() {
			delete(s.entered, key)
		} else {
			s.entered[key] = struct{}{}
		}
		s.dirty = true
		s.edits++
		s.reprojectLocked()

		s.logger.DebugContext(ctx, "Cell buffered",
			attr.ExtractCorrelationID(ctx),
			attr.PlayerID("player_id", id),
			attr.Int("round", round),
			attr.String("value", value.String()),
		)
		return struct{}{}, nil
	})
	return err
}

// ClearCell empties one cell.
func (s *Session) ClearCell(ctx context.Context, id scoreboardtypes.PlayerID, round int) error {
	return s.SetCell(ctx, id, round, scoreboardtypes.Empty())
}

// SetToken resolves a letter token or integer literal through the game's
// custom rules and writes the result.
func (s *Session) SetToken(ctx context.Context, id scoreboardtypes.PlayerID, round int, token string) error {
	v, err := s.Rules().Resolve(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScore, err)
	}
	return s.SetCell(ctx, id, round, scoreboardtypes.Filled(v))
}
