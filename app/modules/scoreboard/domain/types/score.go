package scoreboardtypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// scoreNamespace seeds the deterministic Score ids.
var scoreNamespace = uuid.MustParse("6f1c2a8e-3b0d-4c59-9d7e-1f2a3b4c5d6e")

// Score is one persisted (game, player, round) entry. A missing record means
// the cell was never entered.
type Score struct {
	ID          string
	GameID      GameID
	PlayerID    PlayerID
	RoundNumber int
	Score       int
	Owner       UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScoreID derives the record id from its composite key.
func ScoreID(gameID GameID, playerID PlayerID, round int) string {
	return uuid.NewSHA1(scoreNamespace, fmt.Appendf(nil, "%s|%s|%d", gameID, playerID, round)).String()
}

// ScoreFilter selects Score records. PlayerID is optional.
type ScoreFilter struct {
	GameID   GameID
	PlayerID PlayerID
}

// GameFilter selects Game records. Zero fields match everything.
type GameFilter struct {
	HostUserID UserID
	Status     GameStatus
}

// User is a registered account.
type User struct {
	ID          UserID
	Username    string
	DisplayName string
	Email       string
}

// Name returns the preferred display name.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return string(u.ID)
}
