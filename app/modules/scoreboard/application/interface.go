package scoreboardservice

import (
	"context"
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// RecordStore is the remote key-value record store holding games, scores and users.
// All methods are context-aware for cancellation and timeout propagation.
//
// Error semantics:
//   - ErrNotFound: the record does not exist
//   - ErrConflict: a key or uniqueness constraint rejected the write
//   - Other errors: transport failures
type RecordStore interface {
	GetGame(ctx context.Context, id scoreboardtypes.GameID) (*scoreboardtypes.Game, error)
	UpdateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
	DeleteGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
	ListGames(ctx context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error)

	ListScores(ctx context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error)
	CreateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)
	UpdateScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)
	DeleteScore(ctx context.Context, score scoreboardtypes.Score) (scoreboardtypes.Score, error)

	ListUsers(ctx context.Context) ([]scoreboardtypes.User, error)
}

// CurrentUserProvider resolves who is acting. ok is false for anonymous callers.
type CurrentUserProvider interface {
	CurrentUser(ctx context.Context) (id scoreboardtypes.UserID, ok bool)
}

// CurrentUserFunc adapts a function to CurrentUserProvider.
type CurrentUserFunc func(ctx context.Context) (scoreboardtypes.UserID, bool)

func (f CurrentUserFunc) CurrentUser(ctx context.Context) (scoreboardtypes.UserID, bool) {
	return f(ctx)
}

// CelebrationStore remembers, per game, whether the completion celebration was shown.
type CelebrationStore interface {
	HasCelebrated(ctx context.Context, gameID scoreboardtypes.GameID) (bool, error)
	MarkCelebrated(ctx context.Context, gameID scoreboardtypes.GameID) error
}

// EventPublisher publishes domain events. Publishing is best effort from the
// session's point of view.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// MigrationDispatcher runs score migrations after a rename was persisted.
type MigrationDispatcher interface {
	Dispatch(ctx context.Context, job MigrationJob) error
}

// Feedback receives the outcome of interactive saves.
type Feedback interface {
	SaveSucceeded(ctx context.Context, report SaveReport)
	SaveFailed(ctx context.Context, report SaveReport, err error)
}

// Metrics records scoreboard operation metrics.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation string, gameID scoreboardtypes.GameID)
	RecordOperationSuccess(ctx context.Context, operation string, gameID scoreboardtypes.GameID)
	RecordOperationFailure(ctx context.Context, operation string, gameID scoreboardtypes.GameID)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	RecordRemoteMutation(ctx context.Context, kind string, ok bool)
}

// NoOpMetrics discards all measurements.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string, scoreboardtypes.GameID) {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string, scoreboardtypes.GameID) {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string, scoreboardtypes.GameID) {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration)         {}
func (NoOpMetrics) RecordRemoteMutation(context.Context, string, bool)                     {}

type noopFeedback struct{}

func (noopFeedback) SaveSucceeded(context.Context, SaveReport)      {}
func (noopFeedback) SaveFailed(context.Context, SaveReport, error) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
