package scoreboarddb

import (
	"context"

	"github.com/uptrace/bun"
)

// Repository defines the contract for scoreboard persistence. Every method
// accepts an optional bun.IDB so callers can run it inside a transaction;
// nil uses the repository's own connection.
type Repository interface {
	GetGame(ctx context.Context, db bun.IDB, id string) (*Game, error)
	InsertGame(ctx context.Context, db bun.IDB, game *Game) error
	UpdateGame(ctx context.Context, db bun.IDB, game *Game) error
	// DeleteGame removes the game together with its scores and celebration flag.
	DeleteGame(ctx context.Context, db bun.IDB, id string) (*Game, error)
	ListGames(ctx context.Context, db bun.IDB, hostUserID, status string) ([]Game, error)

	ListScores(ctx context.Context, db bun.IDB, gameID, playerID string) ([]Score, error)
	InsertScore(ctx context.Context, db bun.IDB, score *Score) error
	UpdateScore(ctx context.Context, db bun.IDB, score *Score) error
	DeleteScore(ctx context.Context, db bun.IDB, id string) (*Score, error)

	ListUsers(ctx context.Context, db bun.IDB) ([]User, error)
	UpsertUser(ctx context.Context, db bun.IDB, user *User) error

	HasCelebrated(ctx context.Context, db bun.IDB, gameID string) (bool, error)
	MarkCelebrated(ctx context.Context, db bun.IDB, gameID string) error
}
