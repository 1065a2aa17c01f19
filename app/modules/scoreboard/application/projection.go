package scoreboardservice

import (
	"cmp"
	"slices"
	"strings"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// Row is one player's displayed scoreboard row.
type Row struct {
	PlayerID scoreboardtypes.PlayerID `json:"player_id"`
	Name     string                   `json:"name"`
	Kind     string                   `json:"kind"`
	Cells    []scoreboardtypes.Cell   `json:"cells"`
	Total    int                      `json:"total"`
}

// ProjectionInput is everything the projection merges.
type ProjectionInput struct {
	Game   *scoreboardtypes.Game
	Scores []scoreboardtypes.Score
	Buffer map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	Names  map[scoreboardtypes.PlayerID]string
}

// Project merges persisted scores, hierarchy mirroring and pending edits into
// the displayed rows. Hierarchy children are not part of the result.
func Project(in ProjectionInput) []Row {
	persisted := groupScores(in.Scores, in.Game)
	all := mergeRows(in.Game, persisted, in.Buffer)
	return sortedRows(in.Game, all, in.Names)
}

// groupScores builds per-player cell arrays of exactly RoundCount length from
// persisted records. Records for unknown players or rounds outside the
// current dimension are ignored.
func groupScores(scores []scoreboardtypes.Score, game *scoreboardtypes.Game) map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell {
	out := make(map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, len(game.PlayerIDs))
	for _, id := range game.ScoringPlayers() {
		out[id] = resizeCells(nil, game.RoundCount)
	}
	for _, sc := range scores {
		cells, ok := out[sc.PlayerID]
		if !ok || sc.RoundNumber < 1 || sc.RoundNumber > game.RoundCount {
			continue
		}
		cells[sc.RoundNumber-1] = scoreboardtypes.Filled(sc.Score)
	}
	return out
}

// mergeRows overlays buffered rows on the persisted ones and mirrors every
// parent row into its children.
func mergeRows(
	game *scoreboardtypes.Game,
	persisted map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell,
	buffer map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell,
) map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell {
	rows := make(map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, len(game.PlayerIDs))
	for _, id := range game.ScoringPlayers() {
		if pending, ok := buffer[id]; ok {
			rows[id] = resizeCells(pending, game.RoundCount)
			continue
		}
		rows[id] = resizeCells(persisted[id], game.RoundCount)
	}
	for parent, children := range game.Hierarchy {
		for _, child := range children {
			if !game.HasPlayer(child) {
				continue
			}
			rows[child] = resizeCells(rows[parent], game.RoundCount)
		}
	}
	return rows
}

func sortedRows(
	game *scoreboardtypes.Game,
	rows map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell,
	names map[scoreboardtypes.PlayerID]string,
) []Row {
	out := make([]Row, 0, len(rows))
	for _, id := range game.ScoringPlayers() {
		cells := rows[id]
		identity := scoreboardtypes.ParseIdentity(id)
		name := names[id]
		if name == "" {
			name = identity.DisplayName()
		}
		out = append(out, Row{
			PlayerID: id,
			Name:     name,
			Kind:     identity.Kind.String(),
			Cells:    slices.Clone(cells),
			Total:    scoreboardtypes.Total(cells),
		})
	}
	slices.SortStableFunc(out, func(a, b Row) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	return out
}

// reprojectLocked recomputes the projection from the shadow and the buffer.
// mu must be held.
func (s *Session) reprojectLocked() {
	s.rows = mergeRows(s.game, s.shadow, s.buffer)
}

// Rows returns the projection sorted by display name.
func (s *Session) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil
	}
	return sortedRows(s.game, s.rows, s.names)
}

// Row returns the projected row of a player, including hierarchy children.
func (s *Session) Row(id scoreboardtypes.PlayerID) ([]scoreboardtypes.Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells, ok := s.rows[id]
	return slices.Clone(cells), ok
}

// Cell returns the projected value of one cell.
func (s *Session) Cell(id scoreboardtypes.PlayerID, round int) scoreboardtypes.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells := s.rows[id]
	if round < 1 || round > len(cells) {
		return scoreboardtypes.Empty()
	}
	return cells[round-1]
}

// IsEntered reports whether the cell was explicitly entered.
func (s *Session) IsEntered(id scoreboardtypes.PlayerID, round int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entered[cellKey{Player: id, Round: round}]
	return ok
}

// RoundCount returns the current round dimension.
func (s *Session) RoundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0
	}
	return s.game.RoundCount
}
