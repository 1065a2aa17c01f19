package scoreboardservice

import (
	"context"
	"fmt"
	"slices"
	"strings"

	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Rename changes an anonymous player's id. Every in-memory map is re-keyed
// before the game record is written; if that write fails the re-keying is
// rolled back and no score is migrated. Persisted scores move through the
// MigrationDispatcher afterwards.
func (s *Session) Rename(ctx context.Context, from, to scoreboardtypes.PlayerID) error {
	_, err := withTelemetry(s, ctx, "Rename", func(ctx context.Context) (struct{}, error) {
		to = scoreboardtypes.PlayerID(strings.TrimSpace(string(to)))
		if to == "" {
			return struct{}{}, ErrEmptyName
		}

		s.mu.Lock()
		if err := s.checkRenameLocked(ctx, from, to); err != nil {
			s.mu.Unlock()
			return struct{}{}, err
		}
		if from == to {
			s.mu.Unlock()
			return struct{}{}, nil
		}
		before := s.snapshotLocked()
		held := s.holdersLocked(from)
		s.rekeyLocked(from, to)
		game := s.game.Clone()
		s.mu.Unlock()

		if _, err := s.deps.Store.UpdateGame(ctx, game); err != nil {
			s.mu.Lock()
			s.restoreLocked(before)
			s.mu.Unlock()
			return struct{}{}, fmt.Errorf("%w: persist renamed player: %w", ErrStoreUnavailable, err)
		}

		s.logger.InfoContext(ctx, "Player renamed",
			attr.ExtractCorrelationID(ctx),
			attr.PlayerID("from", from),
			attr.PlayerID("to", to),
		)
		s.publish(ctx, scoreboardevents.PlayerRenamedV1, scoreboardevents.PlayerRenamedPayloadV1{
			GameID: s.gameID,
			From:   from,
			To:     to,
		})

		dispatchErr := s.deps.Dispatcher.Dispatch(ctx, MigrationJob{GameID: s.gameID, From: from, To: to})

		if residue := s.IdentityResidue(from, to, held); len(residue) > 0 {
			s.logger.ErrorContext(ctx, "Identity residue after rename",
				attr.ExtractCorrelationID(ctx),
				attr.Any("maps", residue),
			)
		}
		if dispatchErr != nil {
			return struct{}{}, fmt.Errorf("migrate scores of renamed player: %w", dispatchErr)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Session) checkRenameLocked(ctx context.Context, from, to scoreboardtypes.PlayerID) error {
	if err := s.checkEditorLocked(ctx); err != nil {
		return err
	}
	if !s.game.HasPlayer(from) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, from)
	}
	if !scoreboardtypes.ParseIdentity(from).Renamable() {
		return fmt.Errorf("%w: %s", ErrNotRenamable, from)
	}
	if from == to {
		return nil
	}
	if !scoreboardtypes.ParseIdentity(to).Renamable() {
		return fmt.Errorf("%w: new name %q looks like an account id", ErrNotRenamable, to)
	}
	if s.game.HasPlayer(to) {
		return fmt.Errorf("%w: %s", ErrDuplicatePlayer, to)
	}
	return nil
}

// rekeyLocked rewrites from to to in every map and list. mu must be held.
func (s *Session) rekeyLocked(from, to scoreboardtypes.PlayerID) {
	for i, id := range s.game.PlayerIDs {
		if id == from {
			s.game.PlayerIDs[i] = to
		}
	}
	if children, ok := s.game.Hierarchy[from]; ok {
		delete(s.game.Hierarchy, from)
		s.game.Hierarchy[to] = children
	}
	for parent, children := range s.game.Hierarchy {
		for i, id := range children {
			if id == from {
				s.game.Hierarchy[parent][i] = to
			}
		}
	}
	// Anonymous players are named by their id.
	delete(s.names, from)
	rekeyCells(s.buffer, from, to)
	rekeyCells(s.shadow, from, to)
	for key := range s.entered {
		if key.Player == from {
			delete(s.entered, key)
			s.entered[cellKey{Player: to, Round: key.Round}] = struct{}{}
		}
	}
	s.reprojectLocked()
}

func rekeyCells(m map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, from, to scoreboardtypes.PlayerID) {
	if cells, ok := m[from]; ok {
		delete(m, from)
		m[to] = cells
	}
}

// holdersLocked names the state maps that reference id. mu must be held.
func (s *Session) holdersLocked(id scoreboardtypes.PlayerID) []string {
	var out []string
	if s.game.HasPlayer(id) {
		out = append(out, "players")
	}
	if _, ok := s.game.Hierarchy[id]; ok {
		out = append(out, "hierarchy")
	} else if s.game.IsChild(id) {
		out = append(out, "hierarchy")
	}
	if _, ok := s.names[id]; ok {
		out = append(out, "names")
	}
	if _, ok := s.rows[id]; ok {
		out = append(out, "rows")
	}
	if _, ok := s.buffer[id]; ok {
		out = append(out, "buffer")
	}
	if _, ok := s.shadow[id]; ok {
		out = append(out, "shadow")
	}
	for key := range s.entered {
		if key.Player == id {
			out = append(out, "entered")
			break
		}
	}
	return out
}

// IdentityResidue reports inconsistencies left by a rename: maps still
// holding from, and maps in held (the maps that referenced from before the
// rename) that do not reference to. An empty result means the rename is clean.
func (s *Session) IdentityResidue(from, to scoreboardtypes.PlayerID, held []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var residue []string
	for _, m := range s.holdersLocked(from) {
		residue = append(residue, "stale "+m)
	}
	now := s.holdersLocked(to)
	for _, m := range held {
		if m == "names" {
			continue
		}
		if !slices.Contains(now, m) {
			residue = append(residue, "missing "+m)
		}
	}
	return residue
}
