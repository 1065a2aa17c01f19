package scoreboardtypes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Cell is one (player, round) slot of the scoreboard. An empty cell means no
// score has been entered, which is distinct from an entered zero.
type Cell struct {
	value  int
	filled bool
}

// Filled returns a cell holding v.
func Filled(v int) Cell { return Cell{value: v, filled: true} }

// Empty returns a cell with no entered score.
func Empty() Cell { return Cell{} }

// Value returns the score and whether the cell holds one.
func (c Cell) Value() (int, bool) { return c.value, c.filled }

// IsEmpty reports whether nothing has been entered.
func (c Cell) IsEmpty() bool { return !c.filled }

func (c Cell) String() string {
	if !c.filled {
		return "-"
	}
	return strconv.Itoa(c.value)
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.filled {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.value)), nil
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Empty()
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("cell must be an integer or null: %w", err)
	}
	*c = Filled(v)
	return nil
}

// Total sums the filled cells. Empty cells are skipped, not counted as zero.
func Total(cells []Cell) int {
	total := 0
	for _, c := range cells {
		if v, ok := c.Value(); ok {
			total += v
		}
	}
	return total
}
