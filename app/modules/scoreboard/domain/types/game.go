package scoreboardtypes

import (
	"slices"
	"time"
)

type (
	GameID   string
	PlayerID string
	UserID   string
)

func (id GameID) String() string   { return string(id) }
func (id PlayerID) String() string { return string(id) }

// DefaultMaxRounds caps the round dimension when a game does not set its own limit.
const DefaultMaxRounds = 8

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	GameStatusActive    GameStatus = "ACTIVE"
	GameStatusCompleted GameStatus = "COMPLETED"
)

// WinCondition decides the sort order used to resolve a winner.
type WinCondition string

const (
	HighestScoreWins WinCondition = "HIGHEST_SCORE_WINS"
	LowestScoreWins  WinCondition = "LOWEST_SCORE_WINS"
)

// Game identifies a match and carries the round dimension.
type Game struct {
	ID           GameID
	HostUserID   UserID
	PlayerIDs    []PlayerID
	RoundCount   int
	MaxRounds    int
	Status       GameStatus
	WinCondition WinCondition
	CustomRules  string
	// Hierarchy maps a parent player to the children mirroring its scores.
	Hierarchy map[PlayerID][]PlayerID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveMaxRounds returns MaxRounds, or DefaultMaxRounds when unset.
func (g *Game) EffectiveMaxRounds() int {
	if g.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return g.MaxRounds
}

// EffectiveWinCondition defaults to HighestScoreWins.
func (g *Game) EffectiveWinCondition() WinCondition {
	if g.WinCondition == LowestScoreWins {
		return LowestScoreWins
	}
	return HighestScoreWins
}

// ParentOf returns the parent of a child player.
func (g *Game) ParentOf(id PlayerID) (PlayerID, bool) {
	for parent, children := range g.Hierarchy {
		if slices.Contains(children, id) {
			return parent, true
		}
	}
	return "", false
}

// IsChild reports whether id mirrors another player's scores.
func (g *Game) IsChild(id PlayerID) bool {
	_, ok := g.ParentOf(id)
	return ok
}

// ScoringPlayers returns the player ids that own their scores, in game order.
func (g *Game) ScoringPlayers() []PlayerID {
	out := make([]PlayerID, 0, len(g.PlayerIDs))
	for _, id := range g.PlayerIDs {
		if !g.IsChild(id) {
			out = append(out, id)
		}
	}
	return out
}

// HasPlayer reports whether id is part of the game.
func (g *Game) HasPlayer(id PlayerID) bool {
	return slices.Contains(g.PlayerIDs, id)
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.PlayerIDs = slices.Clone(g.PlayerIDs)
	if g.Hierarchy != nil {
		c.Hierarchy = make(map[PlayerID][]PlayerID, len(g.Hierarchy))
		for k, v := range g.Hierarchy {
			c.Hierarchy[k] = slices.Clone(v)
		}
	}
	return &c
}

// Outcome is the result of winner resolution.
type Outcome struct {
	Winners      []PlayerID
	WinningScore int
	IsTie        bool
}

// HasWinner reports whether at least one player won.
func (o Outcome) HasWinner() bool { return len(o.Winners) > 0 }
