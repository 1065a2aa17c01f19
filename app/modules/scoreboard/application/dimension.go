package scoreboardservice

import (
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// Every array-shaped piece of session state is aligned to the round count
// through these helpers only.

// resizeCells pads cells with empty cells up to n, or truncates from the end.
// The input slice is never modified.
func resizeCells(cells []scoreboardtypes.Cell, n int) []scoreboardtypes.Cell {
	if n < 0 {
		n = 0
	}
	out := make([]scoreboardtypes.Cell, n)
	copy(out, cells)
	return out
}

// spliceCells removes the cell at idx and shifts later cells down by one.
// Out-of-range indexes return an unchanged copy.
func spliceCells(cells []scoreboardtypes.Cell, idx int) []scoreboardtypes.Cell {
	out := make([]scoreboardtypes.Cell, 0, len(cells))
	out = append(out, cells...)
	if idx < 0 || idx >= len(out) {
		return out
	}
	return append(out[:idx], out[idx+1:]...)
}

func resizeAll(m map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, n int) {
	for id, cells := range m {
		m[id] = resizeCells(cells, n)
	}
}

func spliceAll(m map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, idx int) {
	for id, cells := range m {
		m[id] = spliceCells(cells, idx)
	}
}

// spliceEntered drops the entered marks of round and moves marks of later
// rounds down by one so they follow the spliced arrays.
func spliceEntered(entered map[cellKey]struct{}, round int) map[cellKey]struct{} {
	out := make(map[cellKey]struct{}, len(entered))
	for k := range entered {
		switch {
		case k.Round < round:
			out[k] = struct{}{}
		case k.Round > round:
			out[cellKey{Player: k.Player, Round: k.Round - 1}] = struct{}{}
		}
	}
	return out
}

// growLocked appends one empty round to every array. mu must be held.
func (s *Session) growLocked() {
	s.game.RoundCount++
	resizeAll(s.buffer, s.game.RoundCount)
	resizeAll(s.shadow, s.game.RoundCount)
	s.reprojectLocked()
}

// shrinkLocked removes round (1-based) from every array. mu must be held.
func (s *Session) shrinkLocked(round int) {
	s.game.RoundCount--
	spliceAll(s.buffer, round-1)
	spliceAll(s.shadow, round-1)
	// Arrays that were short of the old round count still end up aligned.
	resizeAll(s.buffer, s.game.RoundCount)
	resizeAll(s.shadow, s.game.RoundCount)
	s.entered = spliceEntered(s.entered, round)
	s.reprojectLocked()
}
