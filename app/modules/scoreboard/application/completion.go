package scoreboardservice

import (
	"cmp"
	"slices"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// IsComplete reports whether every scoring player has an explicitly entered
// score for every round. Projected values alone do not count.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCompleteLocked()
}

func (s *Session) isCompleteLocked() bool {
	if !s.loaded || s.game.RoundCount <= 0 {
		return false
	}
	players := s.game.ScoringPlayers()
	if len(players) == 0 {
		return false
	}
	for _, id := range players {
		for round := 1; round <= s.game.RoundCount; round++ {
			if _, ok := s.entered[cellKey{Player: id, Round: round}]; !ok {
				return false
			}
		}
	}
	return true
}

// Winner resolves the outcome of a complete game.
func (s *Session) Winner() (scoreboardtypes.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCompleteLocked() {
		return scoreboardtypes.Outcome{}, ErrNotComplete
	}
	return ResolveWinner(sortedRows(s.game, s.rows, s.names), s.game.EffectiveWinCondition()), nil
}

// ResolveWinner returns every player sharing the best total under cond. More
// than one winner is a tie; no rows is no winner.
func ResolveWinner(rows []Row, cond scoreboardtypes.WinCondition) scoreboardtypes.Outcome {
	if len(rows) == 0 {
		return scoreboardtypes.Outcome{}
	}
	ranked := slices.Clone(rows)
	slices.SortStableFunc(ranked, func(a, b Row) int {
		if cond == scoreboardtypes.LowestScoreWins {
			return cmp.Compare(a.Total, b.Total)
		}
		return cmp.Compare(b.Total, a.Total)
	})

	best := ranked[0].Total
	var winners []scoreboardtypes.PlayerID
	for _, r := range ranked {
		if r.Total != best {
			break
		}
		winners = append(winners, r.PlayerID)
	}
	return scoreboardtypes.Outcome{
		Winners:      winners,
		WinningScore: best,
		IsTie:        len(winners) > 1,
	}
}
