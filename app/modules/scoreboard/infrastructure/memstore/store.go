// Package scoreboardmemstore is a process-local record store for single-node
// deployments and tests. Contents are lost on restart.
package scoreboardmemstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// Store keeps games, scores, users and celebration flags in maps. It enforces
// the same (game, player, round) uniqueness as the Postgres store.
type Store struct {
	mu         sync.RWMutex
	games      map[scoreboardtypes.GameID]*scoreboardtypes.Game
	scores     map[string]scoreboardtypes.Score
	users      map[scoreboardtypes.UserID]scoreboardtypes.User
	celebrated map[scoreboardtypes.GameID]bool
	now        func() time.Time
}

var (
	_ scoreboardservice.RecordStore      = (*Store)(nil)
	_ scoreboardservice.CelebrationStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		games:      map[scoreboardtypes.GameID]*scoreboardtypes.Game{},
		scores:     map[string]scoreboardtypes.Score{},
		users:      map[scoreboardtypes.UserID]scoreboardtypes.User{},
		celebrated: map[scoreboardtypes.GameID]bool{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateGame inserts game, failing with ErrConflict if the id is taken.
func (s *Store) CreateGame(_ context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return nil, scoreboardservice.ErrConflict
	}
	stored := game.Clone()
	if stored.Status == "" {
		stored.Status = scoreboardtypes.GameStatusActive
	}
	if stored.MaxRounds <= 0 {
		stored.MaxRounds = scoreboardtypes.DefaultMaxRounds
	}
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.games[game.ID] = stored
	return stored.Clone(), nil
}

// PutUser adds or replaces a directory entry.
func (s *Store) PutUser(u scoreboardtypes.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetGame(_ context.Context, id scoreboardtypes.GameID) (*scoreboardtypes.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, scoreboardservice.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *Store) UpdateGame(_ context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.games[game.ID]
	if !ok {
		return nil, scoreboardservice.ErrNotFound
	}
	stored := game.Clone()
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = s.now()
	s.games[game.ID] = stored
	return stored.Clone(), nil
}

func (s *Store) DeleteGame(_ context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[game.ID]
	if !ok {
		return nil, scoreboardservice.ErrNotFound
	}
	delete(s.games, game.ID)
	delete(s.celebrated, game.ID)
	return g, nil
}

func (s *Store) ListGames(_ context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scoreboardtypes.Game, 0, len(s.games))
	for _, g := range s.games {
		if filter.HostUserID != "" && g.HostUserID != filter.HostUserID {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		out = append(out, g.Clone())
	}
	slices.SortFunc(out, func(a, b *scoreboardtypes.Game) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) ListScores(_ context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scoreboardtypes.Score
	for _, sc := range s.scores {
		if sc.GameID != filter.GameID {
			continue
		}
		if filter.PlayerID != "" && sc.PlayerID != filter.PlayerID {
			continue
		}
		out = append(out, sc)
	}
	slices.SortFunc(out, func(a, b scoreboardtypes.Score) int {
		if c := cmp.Compare(a.PlayerID, b.PlayerID); c != 0 {
			return c
		}
		return cmp.Compare(a.RoundNumber, b.RoundNumber)
	})
	return out, nil
}

func (s *Store) CreateScore(_ context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score.ID == "" {
		score.ID = scoreboardtypes.ScoreID(score.GameID, score.PlayerID, score.RoundNumber)
	}
	if _, ok := s.scores[score.ID]; ok || s.keyTakenLocked(score, "") {
		return scoreboardtypes.Score{}, scoreboardservice.ErrConflict
	}
	score.CreatedAt = s.now()
	score.UpdatedAt = score.CreatedAt
	s.scores[score.ID] = score
	return score, nil
}

func (s *Store) UpdateScore(_ context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.scores[score.ID]
	if !ok {
		return scoreboardtypes.Score{}, scoreboardservice.ErrNotFound
	}
	if s.keyTakenLocked(score, score.ID) {
		return scoreboardtypes.Score{}, scoreboardservice.ErrConflict
	}
	score.CreatedAt = old.CreatedAt
	score.UpdatedAt = s.now()
	s.scores[score.ID] = score
	return score, nil
}

func (s *Store) DeleteScore(_ context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scores[score.ID]
	if !ok {
		return scoreboardtypes.Score{}, scoreboardservice.ErrNotFound
	}
	delete(s.scores, score.ID)
	return sc, nil
}

func (s *Store) ListUsers(_ context.Context) ([]scoreboardtypes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scoreboardtypes.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b scoreboardtypes.User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) HasCelebrated(_ context.Context, gameID scoreboardtypes.GameID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.celebrated[gameID], nil
}

func (s *Store) MarkCelebrated(_ context.Context, gameID scoreboardtypes.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.celebrated[gameID] = true
	return nil
}

// keyTakenLocked reports whether another record already holds score's
// (game, player, round) key.
func (s *Store) keyTakenLocked(score scoreboardtypes.Score, self string) bool {
	for id, sc := range s.scores {
		if id == self {
			continue
		}
		if sc.GameID == score.GameID && sc.PlayerID == score.PlayerID && sc.RoundNumber == score.RoundNumber {
			return true
		}
	}
	return false
}
