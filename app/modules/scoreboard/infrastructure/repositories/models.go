package scoreboarddb

import (
	"time"

	"github.com/uptrace/bun"
)

// Game is a scorecard match and its round dimension.
type Game struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID           string              `bun:"id,pk,type:varchar(64)"`
	HostUserID   string              `bun:"host_user_id,notnull"`
	PlayerIDs    []string            `bun:"player_ids,array,notnull"`
	RoundCount   int                 `bun:"round_count,notnull,default:1"`
	MaxRounds    int                 `bun:"max_rounds,notnull,default:8"`
	Status       string              `bun:"status,notnull,default:'ACTIVE'"`
	WinCondition string              `bun:"win_condition,notnull,default:'HIGHEST_SCORE_WINS'"`
	CustomRules  string              `bun:"custom_rules,nullzero"`
	Hierarchy    map[string][]string `bun:"player_hierarchy,type:jsonb"`
	CreatedAt    time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Score is one entered (game, player, round) value.
type Score struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	ID          string    `bun:"id,pk,type:uuid"`
	GameID      string    `bun:"game_id,notnull"`
	PlayerID    string    `bun:"player_id,notnull"`
	RoundNumber int       `bun:"round_number,notnull"`
	Score       int       `bun:"score,notnull"`
	Owner       string    `bun:"owner,nullzero"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// User is a registered account used to resolve player names.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string    `bun:"id,pk,type:varchar(64)"`
	Username    string    `bun:"username,notnull"`
	DisplayName string    `bun:"display_name,nullzero"`
	Email       string    `bun:"email,nullzero,unique"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// GameCelebration records that a completed game's celebration was shown.
type GameCelebration struct {
	bun.BaseModel `bun:"table:game_celebrations,alias:gc"`

	GameID       string    `bun:"game_id,pk,type:varchar(64)"`
	CelebratedAt time.Time `bun:"celebrated_at,nullzero,notnull,default:current_timestamp"`
}
