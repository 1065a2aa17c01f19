package scoreboardservice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const testHost scoreboardtypes.UserID = "host-1"

type fixture struct {
	store   *FakeStore
	events  *FakePublisher
	deps    Deps
	session *Session
}

func newGame(id scoreboardtypes.GameID, rounds int, players ...scoreboardtypes.PlayerID) *scoreboardtypes.Game {
	return &scoreboardtypes.Game{
		ID:         id,
		HostUserID: testHost,
		PlayerIDs:  players,
		RoundCount: rounds,
		Status:     scoreboardtypes.GameStatusActive,
	}
}

func asUser(id scoreboardtypes.UserID) CurrentUserProvider {
	return CurrentUserFunc(func(context.Context) (scoreboardtypes.UserID, bool) {
		return id, id != ""
	})
}

func newFixture(t *testing.T, game *scoreboardtypes.Game, opts ...func(*Deps)) *fixture {
	t.Helper()
	store := NewFakeStore()
	store.PutGame(game)
	events := &FakePublisher{}
	deps := Deps{
		Store:  store,
		Users:  asUser(testHost),
		Events: events,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracer: noop.NewTracerProvider().Tracer("test"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &fixture{
		store:   store,
		events:  events,
		deps:    deps,
		session: NewSession(game.ID, deps),
	}
}

// load refreshes the session and resets the store trace.
func (f *fixture) load(t *testing.T) *Session {
	t.Helper()
	require.NoError(t, f.session.Refresh(context.Background()))
	f.store.ResetTrace()
	return f.session
}

func cellStrings(cells []scoreboardtypes.Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

func rowOf(t *testing.T, s *Session, id scoreboardtypes.PlayerID) []string {
	t.Helper()
	cells, ok := s.Row(id)
	require.True(t, ok, "no row for %s", id)
	return cellStrings(cells)
}

func TestSession_EmptyAndZeroAreDistinct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGame("g1", 2, "Alice", "Bob"))
	s := f.load(t)

	assert.True(t, s.Cell("Alice", 1).IsEmpty())
	assert.False(t, s.IsEntered("Alice", 1))

	require.NoError(t, s.SetCell(ctx, "Alice", 1, scoreboardtypes.Filled(0)))

	v, ok := s.Cell("Alice", 1).Value()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.True(t, s.IsEntered("Alice", 1))
	assert.False(t, s.IsEntered("Alice", 2))
	assert.True(t, s.IsDirty())

	require.NoError(t, s.SetCell(ctx, "Alice", 1, scoreboardtypes.Filled(0)))
	assert.Equal(t, []string{"0", "-"}, rowOf(t, s, "Alice"))

	require.NoError(t, s.ClearCell(ctx, "Alice", 1))
	assert.True(t, s.Cell("Alice", 1).IsEmpty())
	assert.False(t, s.IsEntered("Alice", 1))
}

func TestSession_SetCellSeedsFromProjection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGame("g1", 3, "Alice"))
	f.store.PutScore("g1", "Alice", 1, 5)
	f.store.PutScore("g1", "Alice", 3, 3)
	s := f.load(t)

	require.NoError(t, s.SetCell(ctx, "Alice", 2, scoreboardtypes.Filled(9)))

	assert.Equal(t, []string{"5", "9", "3"}, rowOf(t, s, "Alice"))
	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 17, rows[0].Total)
}

func TestSession_SetCellPreconditions(t *testing.T) {
	ctx := context.Background()
	completed := newGame("g2", 2, "Alice")
	completed.Status = scoreboardtypes.GameStatusCompleted

	tests := []struct {
		name    string
		game    *scoreboardtypes.Game
		user    scoreboardtypes.UserID
		player  scoreboardtypes.PlayerID
		round   int
		wantErr error
	}{
		{name: "not the host", game: newGame("g1", 2, "Alice"), user: "intruder", player: "Alice", round: 1, wantErr: ErrNotEditor},
		{name: "anonymous caller", game: newGame("g1", 2, "Alice"), user: "", player: "Alice", round: 1, wantErr: ErrNotEditor},
		{name: "completed game", game: completed, user: testHost, player: "Alice", round: 1, wantErr: ErrGameCompleted},
		{name: "unknown player", game: newGame("g1", 2, "Alice"), user: testHost, player: "Zed", round: 1, wantErr: ErrUnknownPlayer},
		{name: "round zero", game: newGame("g1", 2, "Alice"), user: testHost, player: "Alice", round: 0, wantErr: ErrRoundOutOfRange},
		{name: "round past count", game: newGame("g1", 2, "Alice"), user: testHost, player: "Alice", round: 3, wantErr: ErrRoundOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.game, func(d *Deps) { d.Users = asUser(tt.user) })
			s := f.load(t)

			err := s.SetCell(ctx, tt.player, tt.round, scoreboardtypes.Filled(1))
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsPrecondition(err))
			assert.False(t, s.IsDirty())
		})
	}
}

func TestSession_NotLoaded(t *testing.T) {
	f := newFixture(t, newGame("g1", 1, "Alice"))

	err := f.session.SetCell(context.Background(), "Alice", 1, scoreboardtypes.Filled(1))
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = f.session.Game()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, f.session.Rows())
	assert.False(t, f.session.CanEdit(context.Background()))
}

func TestSession_SetToken(t *testing.T) {
	ctx := context.Background()
	game := newGame("g1", 2, "Alice")
	game.CustomRules = `[{"letter":"x","value":10},{"letter":"F","value":-5}]`
	f := newFixture(t, game)
	s := f.load(t)

	require.NoError(t, s.SetToken(ctx, "Alice", 1, "X"))
	require.NoError(t, s.SetToken(ctx, "Alice", 2, "-3"))
	assert.Equal(t, []string{"10", "-3"}, rowOf(t, s, "Alice"))

	err := s.SetToken(ctx, "Alice", 1, "Q")
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestSession_Hierarchy(t *testing.T) {
	ctx := context.Background()
	game := newGame("g1", 1, "Parent", "Child", "Solo")
	game.Hierarchy = map[scoreboardtypes.PlayerID][]scoreboardtypes.PlayerID{"Parent": {"Child"}}
	f := newFixture(t, game)
	f.store.PutScore("g1", "Parent", 1, 4)
	s := f.load(t)

	rows := s.Rows()
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotEqual(t, scoreboardtypes.PlayerID("Child"), r.PlayerID)
	}
	assert.Equal(t, []string{"4"}, rowOf(t, s, "Child"))

	err := s.SetCell(ctx, "Child", 1, scoreboardtypes.Filled(1))
	assert.ErrorIs(t, err, ErrChildPlayer)

	require.NoError(t, s.SetCell(ctx, "Parent", 1, scoreboardtypes.Filled(6)))
	assert.Equal(t, []string{"6"}, rowOf(t, s, "Child"))

	report, err := s.Save(ctx, SaveSilent)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, f.store.StoredScores("g1", "Child"))
	assert.Equal(t, map[int]int{1: 6}, f.store.StoredScores("g1", "Parent"))
}

func TestSession_RowsSortedByName(t *testing.T) {
	f := newFixture(t, newGame("g1", 1, "carol", "Alice", "bob"))
	s := f.load(t)

	var names []string
	for _, r := range s.Rows() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Alice", "bob", "carol"}, names)
}

func TestSession_ResolvesDirectoryNames(t *testing.T) {
	uid := "6a0e1c9e-1d5f-4d8e-9a51-0b3c1f2e4d77"
	f := newFixture(t, newGame("g1", 1, scoreboardtypes.PlayerID(uid), "guest_42", "Zoe"))
	f.store.PutUser(scoreboardtypes.User{ID: scoreboardtypes.UserID(uid), Username: "ann", DisplayName: "Ann"})
	s := f.load(t)

	byID := map[scoreboardtypes.PlayerID]Row{}
	for _, r := range s.Rows() {
		byID[r.PlayerID] = r
	}
	assert.Equal(t, "Ann", byID[scoreboardtypes.PlayerID(uid)].Name)
	assert.Equal(t, "authenticated", byID[scoreboardtypes.PlayerID(uid)].Kind)
	assert.Equal(t, "guest_42", byID["guest_42"].Name)
	assert.Equal(t, "guest", byID["guest_42"].Kind)
	assert.Equal(t, "anonymous", byID["Zoe"].Kind)
}
