package scoreboardmigrations

import (
	"context"
	"fmt"

	scoreboarddb "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating scoreboard tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, model := range []any{
				(*scoreboarddb.Game)(nil),
				(*scoreboarddb.Score)(nil),
				(*scoreboarddb.User)(nil),
				(*scoreboarddb.GameCelebration)(nil),
			} {
				if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return fmt.Errorf("failed to create table for %T: %w", model, err)
				}
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_scores_game_player_round
					ON scores(game_id, player_id, round_number);
				CREATE INDEX IF NOT EXISTS idx_scores_game_id ON scores(game_id);
				CREATE INDEX IF NOT EXISTS idx_games_host_status ON games(host_user_id, status);
			`); err != nil {
				return fmt.Errorf("failed to create scoreboard indexes: %w", err)
			}

			fmt.Println("Scoreboard tables created successfully!")
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping scoreboard tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, model := range []any{
				(*scoreboarddb.GameCelebration)(nil),
				(*scoreboarddb.Score)(nil),
				(*scoreboarddb.User)(nil),
				(*scoreboarddb.Game)(nil),
			} {
				if _, err := tx.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
					return fmt.Errorf("failed to drop table for %T: %w", model, err)
				}
			}
			fmt.Println("Scoreboard tables dropped successfully!")
			return nil
		})
	})
}
