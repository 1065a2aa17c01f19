package scoreboarddb

import (
	"context"
	"errors"
	"fmt"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// Store adapts a Repository to the scoreboard record store and celebration
// store ports, translating rows to domain types and repository errors to the
// service's error taxonomy.
type Store struct {
	repo Repository
}

var (
	_ scoreboardservice.RecordStore      = (*Store)(nil)
	_ scoreboardservice.CelebrationStore = (*Store)(nil)
)

// NewStore wraps repo.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoRowsAffected):
		return fmt.Errorf("%w: %w", scoreboardservice.ErrNotFound, err)
	case errors.Is(err, ErrUniqueViolation):
		return fmt.Errorf("%w: %w", scoreboardservice.ErrConflict, err)
	default:
		return err
	}
}

func (s *Store) GetGame(ctx context.Context, id scoreboardtypes.GameID) (*scoreboardtypes.Game, error) {
	row, err := s.repo.GetGame(ctx, nil, string(id))
	if err != nil {
		return nil, translate(err)
	}
	return toDomainGame(row), nil
}

func (s *Store) UpdateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	row := toGameRow(game)
	if err := s.repo.UpdateGame(ctx, nil, row); err != nil {
		return nil, translate(err)
	}
	return toDomainGame(row), nil
}

func (s *Store) DeleteGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	row, err := s.repo.DeleteGame(ctx, nil, string(game.ID))
	if err != nil {
		return nil, translate(err)
	}
	return toDomainGame(row), nil
}

func (s *Store) ListGames(ctx context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error) {
	rows, err := s.repo.ListGames(ctx, nil, string(filter.HostUserID), string(filter.Status))
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*scoreboardtypes.Game, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainGame(&rows[i]))
	}
	return out, nil
}

// CreateGame inserts a new game. It is not part of the session port; games
// are created by the HTTP transport.
func (s *Store) CreateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error) {
	row := toGameRow(game)
	if err := s.repo.InsertGame(ctx, nil, row); err != nil {
		return nil, translate(err)
	}
	return toDomainGame(row), nil
}

func (s *Store) ListScores(ctx context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error) {
	rows, err := s.repo.ListScores(ctx, nil, string(filter.GameID), string(filter.PlayerID))
	if err != nil {
		return nil, translate(err)
	}
	out := make([]scoreboardtypes.Score, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainScore(&rows[i]))
	}
	return out, nil
}

func (s *Store) CreateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	if score.ID == "" {
		score.ID = scoreboardtypes.ScoreID(score.GameID, score.PlayerID, score.RoundNumber)
	}
	row := toScoreRow(score)
	if err := s.repo.InsertScore(ctx, nil, row); err != nil {
		return scoreboardtypes.Score{}, translate(err)
	}
	return toDomainScore(row), nil
}

func (s *Store) UpdateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	row := toScoreRow(score)
	if err := s.repo.UpdateScore(ctx, nil, row); err != nil {
		return scoreboardtypes.Score{}, translate(err)
	}
	return toDomainScore(row), nil
}

func (s *Store) DeleteScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error) {
	row, err := s.repo.DeleteScore(ctx, nil, score.ID)
	if err != nil {
		return scoreboardtypes.Score{}, translate(err)
	}
	return toDomainScore(row), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]scoreboardtypes.User, error) {
	rows, err := s.repo.ListUsers(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]scoreboardtypes.User, 0, len(rows))
	for _, u := range rows {
		out = append(out, scoreboardtypes.User{
			ID:          scoreboardtypes.UserID(u.ID),
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Email:       u.Email,
		})
	}
	return out, nil
}

func (s *Store) HasCelebrated(ctx context.Context, gameID scoreboardtypes.GameID) (bool, error) {
	ok, err := s.repo.HasCelebrated(ctx, nil, string(gameID))
	return ok, translate(err)
}

func (s *Store) MarkCelebrated(ctx context.Context, gameID scoreboardtypes.GameID) error {
	return translate(s.repo.MarkCelebrated(ctx, nil, string(gameID)))
}

// --- Mapping ---

func toDomainGame(row *Game) *scoreboardtypes.Game {
	if row == nil {
		return nil
	}
	g := &scoreboardtypes.Game{
		ID:           scoreboardtypes.GameID(row.ID),
		HostUserID:   scoreboardtypes.UserID(row.HostUserID),
		PlayerIDs:    make([]scoreboardtypes.PlayerID, 0, len(row.PlayerIDs)),
		RoundCount:   row.RoundCount,
		MaxRounds:    row.MaxRounds,
		Status:       scoreboardtypes.GameStatus(row.Status),
		WinCondition: scoreboardtypes.WinCondition(row.WinCondition),
		CustomRules:  row.CustomRules,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	for _, id := range row.PlayerIDs {
		g.PlayerIDs = append(g.PlayerIDs, scoreboardtypes.PlayerID(id))
	}
	if len(row.Hierarchy) > 0 {
		g.Hierarchy = make(map[scoreboardtypes.PlayerID][]scoreboardtypes.PlayerID, len(row.Hierarchy))
		for parent, children := range row.Hierarchy {
			ids := make([]scoreboardtypes.PlayerID, 0, len(children))
			for _, c := range children {
				ids = append(ids, scoreboardtypes.PlayerID(c))
			}
			g.Hierarchy[scoreboardtypes.PlayerID(parent)] = ids
		}
	}
	return g
}

func toGameRow(g *scoreboardtypes.Game) *Game {
	row := &Game{
		ID:           string(g.ID),
		HostUserID:   string(g.HostUserID),
		PlayerIDs:    make([]string, 0, len(g.PlayerIDs)),
		RoundCount:   g.RoundCount,
		MaxRounds:    g.EffectiveMaxRounds(),
		Status:       string(g.Status),
		WinCondition: string(g.EffectiveWinCondition()),
		CustomRules:  g.CustomRules,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	if row.Status == "" {
		row.Status = string(scoreboardtypes.GameStatusActive)
	}
	for _, id := range g.PlayerIDs {
		row.PlayerIDs = append(row.PlayerIDs, string(id))
	}
	if len(g.Hierarchy) > 0 {
		row.Hierarchy = make(map[string][]string, len(g.Hierarchy))
		for parent, children := range g.Hierarchy {
			ids := make([]string, 0, len(children))
			for _, c := range children {
				ids = append(ids, string(c))
			}
			row.Hierarchy[string(parent)] = ids
		}
	}
	return row
}

func toDomainScore(row *Score) scoreboardtypes.Score {
	return scoreboardtypes.Score{
		ID:          row.ID,
		GameID:      scoreboardtypes.GameID(row.GameID),
		PlayerID:    scoreboardtypes.PlayerID(row.PlayerID),
		RoundNumber: row.RoundNumber,
		Score:       row.Score,
		Owner:       scoreboardtypes.UserID(row.Owner),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toScoreRow(s scoreboardtypes.Score) *Score {
	return &Score{
		ID:          s.ID,
		GameID:      string(s.GameID),
		PlayerID:    string(s.PlayerID),
		RoundNumber: s.RoundNumber,
		Score:       s.Score,
		Owner:       string(s.Owner),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
