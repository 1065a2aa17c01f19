package scoreboardservice

import (
	"context"
	"slices"
	"sync"
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// ------------------------
// Fake Record Store
// ------------------------

// FakeStore is an in-memory RecordStore. Each method can be overridden with
// its Func field; overrides run instead of the in-memory behavior.
type FakeStore struct {
	mu    sync.Mutex
	trace []string

	games  map[scoreboardtypes.GameID]*scoreboardtypes.Game
	scores map[string]scoreboardtypes.Score
	users  []scoreboardtypes.User

	GetGameFunc     func(ctx context.Context, id scoreboardtypes.GameID) (*scoreboardtypes.Game, error)
	UpdateGameFunc  func(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
	DeleteGameFunc  func(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
	ListScoresFunc  func(ctx context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error)
	CreateScoreFunc func(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)
	UpdateScoreFunc func(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)
	DeleteScoreFunc func(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)
	ListUsersFunc   func(ctx context.Context) ([]scoreboardtypes.User, error)
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		trace:  []string{},
		games:  map[scoreboardtypes.GameID]*scoreboardtypes.Game{},
		scores: map[string]scoreboardtypes.Score{},
	}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeStore) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.trace)
}

// Mutations returns the create, update and delete calls in the trace.
func (f *FakeStore) Mutations() []string {
	var out []string
	for _, step := range f.Trace() {
		switch step {
		case "CreateScore", "UpdateScore", "DeleteScore":
			out = append(out, step)
		}
	}
	return out
}

func (f *FakeStore) ResetTrace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = []string{}
}

func (f *FakeStore) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

// --- Seeding ---

func (f *FakeStore) PutGame(g *scoreboardtypes.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[g.ID] = g.Clone()
}

func (f *FakeStore) PutScore(gameID scoreboardtypes.GameID, player scoreboardtypes.PlayerID, round, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := scoreboardtypes.ScoreID(gameID, player, round)
	f.scores[id] = scoreboardtypes.Score{ID: id, GameID: gameID, PlayerID: player, RoundNumber: round, Score: value}
}

func (f *FakeStore) PutUser(u scoreboardtypes.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, u)
}

func (f *FakeStore) StoredGame(id scoreboardtypes.GameID) *scoreboardtypes.Game {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.games[id].Clone()
}

// StoredScores returns the persisted scores of a player keyed by round.
func (f *FakeStore) StoredScores(gameID scoreboardtypes.GameID, player scoreboardtypes.PlayerID) map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int]int{}
	for _, sc := range f.scores {
		if sc.GameID == gameID && sc.PlayerID == player {
			out[sc.RoundNumber] = sc.Score
		}
	}
	return out
}

// --- RecordStore Implementation ---

func (f *FakeStore) GetGame(ctx context.Context, id scoreboardtypes.GameID) (*scoreboardtypes.Game, error) {
	f.record("GetGame")
	if f.GetGameFunc != nil {
		return f.GetGameFunc(ctx, id)
	}
	return f.getGame(id)
}

func (f *FakeStore) getGame(id scoreboardtypes.GameID) (*scoreboardtypes.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (f *FakeStore) UpdateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	f.record("UpdateGame")
	if f.UpdateGameFunc != nil {
		return f.UpdateGameFunc(ctx, game)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[game.ID]; !ok {
		return nil, ErrNotFound
	}
	stored := game.Clone()
	stored.UpdatedAt = time.Now().UTC()
	f.games[game.ID] = stored
	return stored.Clone(), nil
}

func (f *FakeStore) DeleteGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	f.record("DeleteGame")
	if f.DeleteGameFunc != nil {
		return f.DeleteGameFunc(ctx, game)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[game.ID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(f.games, game.ID)
	return g, nil
}

func (f *FakeStore) ListGames(ctx context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error) {
	f.record("ListGames")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*scoreboardtypes.Game
	for _, g := range f.games {
		if filter.HostUserID != "" && g.HostUserID != filter.HostUserID {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		out = append(out, g.Clone())
	}
	return out, nil
}

func (f *FakeStore) ListScores(ctx context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error) {
	f.record("ListScores")
	if f.ListScoresFunc != nil {
		return f.ListScoresFunc(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []scoreboardtypes.Score
	for _, sc := range f.scores {
		if sc.GameID != filter.GameID {
			continue
		}
		if filter.PlayerID != "" && sc.PlayerID != filter.PlayerID {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

func (f *FakeStore) CreateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	f.record("CreateScore")
	if f.CreateScoreFunc != nil {
		return f.CreateScoreFunc(ctx, score)
	}
	return f.create(score)
}

func (f *FakeStore) create(score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sc := range f.scores {
		if sc.GameID == score.GameID && sc.PlayerID == score.PlayerID && sc.RoundNumber == score.RoundNumber {
			return scoreboardtypes.Score{}, ErrConflict
		}
	}
	f.scores[score.ID] = score
	return score, nil
}

func (f *FakeStore) UpdateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	f.record("UpdateScore")
	if f.UpdateScoreFunc != nil {
		return f.UpdateScoreFunc(ctx, score)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scores[score.ID]; !ok {
		return scoreboardtypes.Score{}, ErrNotFound
	}
	f.scores[score.ID] = score
	return score, nil
}

func (f *FakeStore) DeleteScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	f.record("DeleteScore")
	if f.DeleteScoreFunc != nil {
		return f.DeleteScoreFunc(ctx, score)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scores[score.ID]
	if !ok {
		return scoreboardtypes.Score{}, ErrNotFound
	}
	delete(f.scores, score.ID)
	return sc, nil
}

func (f *FakeStore) ListUsers(ctx context.Context) ([]scoreboardtypes.User, error) {
	f.record("ListUsers")
	if f.ListUsersFunc != nil {
		return f.ListUsersFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.users), nil
}

// ------------------------
// Fake Collaborators
// ------------------------

type FakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *FakePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *FakePublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.topics)
}

type FakeFeedback struct {
	Succeeded []SaveReport
	Failed    []error
}

func (f *FakeFeedback) SaveSucceeded(_ context.Context, r SaveReport) {
	f.Succeeded = append(f.Succeeded, r)
}

func (f *FakeFeedback) SaveFailed(_ context.Context, _ SaveReport, err error) {
	f.Failed = append(f.Failed, err)
}

type FakeCelebrations struct {
	seen map[scoreboardtypes.GameID]bool
}

func (f *FakeCelebrations) HasCelebrated(_ context.Context, id scoreboardtypes.GameID) (bool, error) {
	return f.seen[id], nil
}

func (f *FakeCelebrations) MarkCelebrated(_ context.Context, id scoreboardtypes.GameID) error {
	if f.seen == nil {
		f.seen = map[scoreboardtypes.GameID]bool{}
	}
	f.seen[id] = true
	return nil
}

// RecordingDispatcher records jobs without running them.
type RecordingDispatcher struct {
	Jobs []MigrationJob
}

func (d *RecordingDispatcher) Dispatch(_ context.Context, job MigrationJob) error {
	d.Jobs = append(d.Jobs, job)
	return nil
}
