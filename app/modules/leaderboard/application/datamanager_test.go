package leaderboardservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/scorecard-club/scorecard/app/eventbus"
	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu            sync.Mutex
	games         []*scoreboardtypes.Game
	scores        []scoreboardtypes.Score
	users         []scoreboardtypes.User
	listScoresErr error
	listUsersErr  error
}

func (f *fakeSource) ListGames(_ context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*scoreboardtypes.Game
	for _, g := range f.games {
		if filter.Status == "" || g.Status == filter.Status {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func (f *fakeSource) ListScores(_ context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listScoresErr != nil {
		return nil, f.listScoresErr
	}
	var out []scoreboardtypes.Score
	for _, s := range f.scores {
		if s.GameID == filter.GameID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) ListUsers(context.Context) ([]scoreboardtypes.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, f.listUsersErr
}

func (f *fakeSource) addGame(id scoreboardtypes.GameID, cond scoreboardtypes.WinCondition, totals map[scoreboardtypes.PlayerID]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &scoreboardtypes.Game{ID: id, RoundCount: 1, Status: scoreboardtypes.GameStatusCompleted, WinCondition: cond}
	for p, v := range totals {
		g.PlayerIDs = append(g.PlayerIDs, p)
		f.scores = append(f.scores, scoreboardtypes.Score{GameID: id, PlayerID: p, RoundNumber: 1, Score: v})
	}
	f.games = append(f.games, g)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func byPlayer(standings []Standing) map[scoreboardtypes.PlayerID]Standing {
	out := make(map[scoreboardtypes.PlayerID]Standing, len(standings))
	for _, s := range standings {
		out[s.PlayerID] = s
	}
	return out
}

func TestRecompute_Tally(t *testing.T) {
	src := &fakeSource{}
	src.addGame("g1", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 10, "bo": 4})
	src.addGame("g2", scoreboardtypes.LowestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 10, "bo": 4})
	src.addGame("g3", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 7, "bo": 7, "cy": 1})
	// Active games are ignored.
	src.games = append(src.games, &scoreboardtypes.Game{ID: "g4", PlayerIDs: []scoreboardtypes.PlayerID{"cy"}, RoundCount: 1, Status: scoreboardtypes.GameStatusActive})

	m := NewDataManager(src, nil, discardLogger())
	require.NoError(t, m.Recompute(context.Background()))

	got := byPlayer(m.Standings())
	assert.Equal(t, Standing{PlayerID: "ann", Name: "ann", Wins: 1, Ties: 1, GamesPlayed: 3}, got["ann"])
	assert.Equal(t, Standing{PlayerID: "bo", Name: "bo", Wins: 1, Ties: 1, GamesPlayed: 3}, got["bo"])
	assert.Equal(t, Standing{PlayerID: "cy", Name: "cy", GamesPlayed: 1}, got["cy"])

	standings := m.Standings()
	require.Len(t, standings, 3)
	assert.Equal(t, scoreboardtypes.PlayerID("cy"), standings[2].PlayerID)
	assert.False(t, m.UpdatedAt().IsZero())
}

func TestRecompute_UsesDirectoryNames(t *testing.T) {
	src := &fakeSource{users: []scoreboardtypes.User{{ID: "guest_7", DisplayName: "Sam"}}}
	src.addGame("g1", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"guest_7": 3})

	m := NewDataManager(src, nil, discardLogger())
	require.NoError(t, m.Recompute(context.Background()))
	require.Len(t, m.Standings(), 1)
	assert.Equal(t, "Sam", m.Standings()[0].Name)
}

func TestRecompute_ScoreFailureKeepsStandings(t *testing.T) {
	src := &fakeSource{}
	src.addGame("g1", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 1})
	m := NewDataManager(src, nil, discardLogger())
	require.NoError(t, m.Recompute(context.Background()))

	src.listScoresErr = errors.New("connection refused")
	src.addGame("g2", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"bo": 1})
	require.Error(t, m.Recompute(context.Background()))
	assert.Len(t, m.Standings(), 1)
}

func TestRecompute_UserFailureIsSoft(t *testing.T) {
	src := &fakeSource{listUsersErr: errors.New("timeout")}
	src.addGame("g1", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 1})
	m := NewDataManager(src, nil, discardLogger())
	require.NoError(t, m.Recompute(context.Background()))
	assert.Len(t, m.Standings(), 1)
}

func TestDataManager_RecomputesOnGameCompleted(t *testing.T) {
	src := &fakeSource{}
	bus := eventbus.NewInMemory(discardLogger())
	t.Cleanup(func() { _ = bus.Close() })

	m := NewDataManager(src, bus, discardLogger())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	assert.Empty(t, m.Standings())

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	src.addGame("g1", scoreboardtypes.HighestScoreWins, map[scoreboardtypes.PlayerID]int{"ann": 9, "bo": 2})
	require.NoError(t, bus.Publish(context.Background(), scoreboardevents.GameCompletedV1,
		scoreboardevents.GameCompletedPayloadV1{GameID: "g1"}))

	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no leaderboard update after game completion")
	}
	got := byPlayer(m.Standings())
	assert.Equal(t, 1, got["ann"].Wins)
	assert.Equal(t, 0, got["bo"].Wins)
}

func TestDataManager_Close(t *testing.T) {
	m := NewDataManager(&fakeSource{}, nil, discardLogger())
	require.NoError(t, m.Start(context.Background()))

	updates, unsubscribe := m.Subscribe()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	unsubscribe()

	_, open := <-updates
	assert.False(t, open)

	late, _ := m.Subscribe()
	_, open = <-late
	assert.False(t, open)

	assert.ErrorIs(t, m.Start(context.Background()), ErrClosed)
}

func TestDataManager_UnsubscribeTwice(t *testing.T) {
	m := NewDataManager(&fakeSource{}, nil, discardLogger())
	_, unsubscribe := m.Subscribe()
	unsubscribe()
	unsubscribe()
	require.NoError(t, m.Recompute(context.Background()))
}
