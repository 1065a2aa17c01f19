package scoreboarddb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new scoreboard repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

func checkAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// --- Games ---

func (r *Impl) GetGame(ctx context.Context, db bun.IDB, id string) (*Game, error) {
	db = r.resolveDB(db)
	game := new(Game)
	err := db.NewSelect().Model(game).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game %s: %w", id, err)
	}
	return game, nil
}

func (r *Impl) InsertGame(ctx context.Context, db bun.IDB, game *Game) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(game).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert game %s: %w", game.ID, classify(err))
	}
	return nil
}

func (r *Impl) UpdateGame(ctx context.Context, db bun.IDB, game *Game) error {
	db = r.resolveDB(db)
	game.UpdatedAt = time.Now().UTC()
	res, err := db.NewUpdate().
		Model(game).
		Column("host_user_id", "player_ids", "round_count", "max_rounds", "status",
			"win_condition", "custom_rules", "player_hierarchy", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update game %s: %w", game.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r *Impl) DeleteGame(ctx context.Context, db bun.IDB, id string) (*Game, error) {
	db = r.resolveDB(db)
	var deleted *Game
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		game, err := r.GetGame(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*Score)(nil)).Where("game_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete scores of game %s: %w", id, err)
		}
		if _, err := tx.NewDelete().Model((*GameCelebration)(nil)).Where("game_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete celebration of game %s: %w", id, err)
		}
		if _, err := tx.NewDelete().Model(game).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete game %s: %w", id, err)
		}
		deleted = game
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Impl) ListGames(ctx context.Context, db bun.IDB, hostUserID, status string) ([]Game, error) {
	db = r.resolveDB(db)
	var games []Game
	q := db.NewSelect().Model(&games).Order("created_at ASC")
	if hostUserID != "" {
		q = q.Where("host_user_id = ?", hostUserID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

// --- Scores ---

func (r *Impl) ListScores(ctx context.Context, db bun.IDB, gameID, playerID string) ([]Score, error) {
	db = r.resolveDB(db)
	var scores []Score
	q := db.NewSelect().Model(&scores).
		Where("game_id = ?", gameID).
		Order("player_id ASC", "round_number ASC")
	if playerID != "" {
		q = q.Where("player_id = ?", playerID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list scores of game %s: %w", gameID, err)
	}
	return scores, nil
}

func (r *Impl) InsertScore(ctx context.Context, db bun.IDB, score *Score) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(score).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert score %s: %w", score.ID, classify(err))
	}
	return nil
}

func (r *Impl) UpdateScore(ctx context.Context, db bun.IDB, score *Score) error {
	db = r.resolveDB(db)
	score.UpdatedAt = time.Now().UTC()
	res, err := db.NewUpdate().
		Model(score).
		Column("player_id", "round_number", "score", "owner", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update score %s: %w", score.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r *Impl) DeleteScore(ctx context.Context, db bun.IDB, id string) (*Score, error) {
	db = r.resolveDB(db)
	score := new(Score)
	err := db.NewDelete().Model(score).Where("id = ?", id).Returning("*").Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete score %s: %w", id, err)
	}
	return score, nil
}

// --- Users ---

func (r *Impl) ListUsers(ctx context.Context, db bun.IDB) ([]User, error) {
	db = r.resolveDB(db)
	var users []User
	if err := db.NewSelect().Model(&users).Order("username ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *Impl) UpsertUser(ctx context.Context, db bun.IDB, user *User) error {
	db = r.resolveDB(db)
	_, err := db.NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("display_name = EXCLUDED.display_name").
		Set("email = EXCLUDED.email").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, classify(err))
	}
	return nil
}

// --- Celebrations ---

func (r *Impl) HasCelebrated(ctx context.Context, db bun.IDB, gameID string) (bool, error) {
	db = r.resolveDB(db)
	exists, err := db.NewSelect().Model((*GameCelebration)(nil)).Where("game_id = ?", gameID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load celebration of game %s: %w", gameID, err)
	}
	return exists, nil
}

func (r *Impl) MarkCelebrated(ctx context.Context, db bun.IDB, gameID string) error {
	db = r.resolveDB(db)
	_, err := db.NewInsert().
		Model(&GameCelebration{GameID: gameID, CelebratedAt: time.Now().UTC()}).
		On("CONFLICT (game_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark celebration of game %s: %w", gameID, err)
	}
	return nil
}
