package scoreboarddb_test

import (
	"context"
	"database/sql"
	"testing"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	scoreboarddb "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/repositories"
	scoreboardmigrations "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/repositories/migrations"
	"github.com/scorecard-club/scorecard/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := testutils.PostgresDSN(t)
	ctx := context.Background()

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, scoreboardmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	return db
}

func TestStore_Postgres(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := scoreboarddb.NewRepository(db)
	store := scoreboarddb.NewStore(repo)

	game, err := store.CreateGame(ctx, &scoreboardtypes.Game{
		ID:         "g1",
		HostUserID: "host-1",
		PlayerIDs:  []scoreboardtypes.PlayerID{"Alice", "Bob", "Kid"},
		RoundCount: 2,
		Hierarchy:  map[scoreboardtypes.PlayerID][]scoreboardtypes.PlayerID{"Alice": {"Kid"}},
	})
	require.NoError(t, err)
	assert.Equal(t, scoreboardtypes.GameStatusActive, game.Status)

	t.Run("game round trip", func(t *testing.T) {
		got, err := store.GetGame(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []scoreboardtypes.PlayerID{"Alice", "Bob", "Kid"}, got.PlayerIDs)
		assert.Equal(t, []scoreboardtypes.PlayerID{"Kid"}, got.Hierarchy["Alice"])
		assert.Equal(t, scoreboardtypes.DefaultMaxRounds, got.MaxRounds)

		got.RoundCount = 3
		_, err = store.UpdateGame(ctx, got)
		require.NoError(t, err)
		again, err := store.GetGame(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, 3, again.RoundCount)
	})

	t.Run("missing game", func(t *testing.T) {
		_, err := store.GetGame(ctx, "nope")
		assert.ErrorIs(t, err, scoreboardservice.ErrNotFound)
	})

	t.Run("score keys are unique", func(t *testing.T) {
		_, err := store.CreateScore(ctx, scoreboardtypes.Score{GameID: "g1", PlayerID: "Alice", RoundNumber: 1, Score: -1})
		require.NoError(t, err)

		_, err = store.CreateScore(ctx, scoreboardtypes.Score{ID: "00000000-0000-0000-0000-000000000001", GameID: "g1", PlayerID: "Alice", RoundNumber: 1, Score: 4})
		assert.ErrorIs(t, err, scoreboardservice.ErrConflict)

		scores, err := store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: "g1", PlayerID: "Alice"})
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, -1, scores[0].Score)
	})

	t.Run("celebration flag", func(t *testing.T) {
		seen, err := store.HasCelebrated(ctx, "g1")
		require.NoError(t, err)
		assert.False(t, seen)
		require.NoError(t, store.MarkCelebrated(ctx, "g1"))
		require.NoError(t, store.MarkCelebrated(ctx, "g1"))
		seen, err = store.HasCelebrated(ctx, "g1")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("session over postgres", func(t *testing.T) {
		s := scoreboardservice.NewSession("g1", scoreboardservice.Deps{
			Store:        store,
			Celebrations: store,
			Users: scoreboardservice.CurrentUserFunc(func(context.Context) (scoreboardtypes.UserID, bool) {
				return "host-1", true
			}),
		})
		require.NoError(t, s.Refresh(ctx))
		require.NoError(t, s.SetCell(ctx, "Bob", 2, scoreboardtypes.Filled(0)))
		_, err := s.Save(ctx, scoreboardservice.SaveSilent)
		require.NoError(t, err)
		require.NoError(t, s.Rename(ctx, "Alice", "Alicia"))

		moved, err := store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: "g1", PlayerID: "Alicia"})
		require.NoError(t, err)
		assert.Len(t, moved, 1)
		left, err := store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: "g1", PlayerID: "Alice"})
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("delete cascades", func(t *testing.T) {
		_, err := store.DeleteGame(ctx, &scoreboardtypes.Game{ID: "g1"})
		require.NoError(t, err)
		scores, err := store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: "g1"})
		require.NoError(t, err)
		assert.Empty(t, scores)
		seen, err := store.HasCelebrated(ctx, "g1")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}
