package scoreboardservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultRefreshTimeout bounds a refresh from the record store.
const DefaultRefreshTimeout = 10 * time.Second

// Deps are the collaborators shared by every session.
type Deps struct {
	Store          RecordStore
	Users          CurrentUserProvider
	Celebrations   CelebrationStore
	Dispatcher     MigrationDispatcher
	Events         EventPublisher
	Feedback       Feedback
	Logger         *slog.Logger
	Metrics        Metrics
	Tracer         trace.Tracer
	RefreshTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.Feedback == nil {
		d.Feedback = noopFeedback{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = NoOpMetrics{}
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("scoreboard")
	}
	if d.RefreshTimeout <= 0 {
		d.RefreshTimeout = DefaultRefreshTimeout
	}
	if d.Dispatcher == nil {
		d.Dispatcher = NewInlineDispatcher(NewScoreMigrator(d.Store, d.Logger, d.Metrics))
	}
	return d
}

// cellKey addresses one entered cell.
type cellKey struct {
	Player scoreboardtypes.PlayerID
	Round  int
}

// Session is the scoreboard state for one game as seen by one user. It owns the
// edit buffer, the last-saved shadow, the entered-set and the projection; none
// of it is shared with sessions of other games.
//
// Every map is guarded by mu. Remote calls never run while mu is held; their
// results are applied under mu afterwards.
type Session struct {
	gameID scoreboardtypes.GameID
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	game    *scoreboardtypes.Game
	rules   scoreboardtypes.RuleSet
	names   map[scoreboardtypes.PlayerID]string
	rows    map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	buffer  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	shadow  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	entered map[cellKey]struct{}
	dirty   bool
	// edits increments on every buffer write so a save can tell whether the
	// buffer changed while it was talking to the store.
	edits uint64

	refreshSeq    uint64
	cancelRefresh context.CancelFunc
}

// NewSession creates an empty session. Call Refresh before reading it.
func NewSession(gameID scoreboardtypes.GameID, deps Deps) *Session {
	deps = deps.withDefaults()
	return &Session{
		gameID:  gameID,
		deps:    deps,
		logger:  deps.Logger.With(attr.GameID("game_id", gameID)),
		names:   map[scoreboardtypes.PlayerID]string{},
		rows:    map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{},
		buffer:  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{},
		shadow:  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{},
		entered: map[cellKey]struct{}{},
	}
}

// GameID returns the game this session belongs to.
func (s *Session) GameID() scoreboardtypes.GameID { return s.gameID }

// Game returns a copy of the cached game record.
func (s *Session) Game() (*scoreboardtypes.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return s.game.Clone(), nil
}

// Rules returns the custom scoring rules of the game.
func (s *Session) Rules() scoreboardtypes.RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules
}

// IsDirty reports whether unsaved edits are pending.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// CanEdit reports whether the current user may edit this scoreboard.
func (s *Session) CanEdit(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkEditorLocked(ctx) == nil
}

// checkEditorLocked verifies the session is loaded, the caller hosts the game
// and the game still accepts edits.
func (s *Session) checkEditorLocked(ctx context.Context) error {
	if err := s.checkHostLocked(ctx); err != nil {
		return err
	}
	if s.game.Status == scoreboardtypes.GameStatusCompleted {
		return ErrGameCompleted
	}
	return nil
}

func (s *Session) checkHostLocked(ctx context.Context) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if s.deps.Users == nil {
		return ErrNotEditor
	}
	uid, ok := s.deps.Users.CurrentUser(ctx)
	if !ok || uid == "" || uid != s.game.HostUserID {
		return ErrNotEditor
	}
	return nil
}

// resetLocked forgets everything about the game. mu must be held.
func (s *Session) resetLocked() {
	s.loaded = false
	s.game = nil
	s.rules = nil
	s.names = map[scoreboardtypes.PlayerID]string{}
	s.rows = map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{}
	s.buffer = map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{}
	s.shadow = map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell{}
	s.entered = map[cellKey]struct{}{}
	s.dirty = false
}

func (s *Session) currentUser(ctx context.Context) scoreboardtypes.UserID {
	if s.deps.Users == nil {
		return ""
	}
	uid, _ := s.deps.Users.CurrentUser(ctx)
	return uid
}

func (s *Session) publish(ctx context.Context, topic string, payload any) {
	if err := s.deps.Events.Publish(ctx, topic, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish scoreboard event",
			attr.ExtractCorrelationID(ctx),
			attr.String("topic", topic),
			attr.Error(err),
		)
	}
}

// withTelemetry wraps a session operation with tracing, metrics, panic recovery
// and structured logging.
func withTelemetry[T any](
	s *Session,
	ctx context.Context,
	operationName string,
	op func(ctx context.Context) (T, error),
) (result T, err error) {
	ctx, span := s.deps.Tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("game_id", s.gameID.String()),
	))
	defer span.End()

	s.deps.Metrics.RecordOperationAttempt(ctx, operationName, s.gameID)
	startTime := time.Now()
	defer func() {
		s.deps.Metrics.RecordOperationDuration(ctx, operationName, time.Since(startTime))
	}()

	s.logger.DebugContext(ctx, operationName+" triggered",
		attr.String("operation", operationName),
		attr.ExtractCorrelationID(ctx),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("operation", operationName),
				attr.Error(err),
			)
			s.deps.Metrics.RecordOperationFailure(ctx, operationName, s.gameID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var zero T
			result = zero
		}
	}()

	result, err = op(ctx)
	if err != nil {
		s.deps.Metrics.RecordOperationFailure(ctx, operationName, s.gameID)
		span.RecordError(err)
		if IsPrecondition(err) {
			s.logger.InfoContext(ctx, operationName+" rejected",
				attr.ExtractCorrelationID(ctx),
				attr.String("operation", operationName),
				attr.Error(err),
			)
		} else {
			span.SetStatus(codes.Error, err.Error())
			s.logger.ErrorContext(ctx, "Operation failed with error",
				attr.ExtractCorrelationID(ctx),
				attr.String("operation", operationName),
				attr.Error(err),
			)
		}
		return result, err
	}

	s.deps.Metrics.RecordOperationSuccess(ctx, operationName, s.gameID)
	s.logger.DebugContext(ctx, operationName+" completed successfully",
		attr.String("operation", operationName),
		attr.ExtractCorrelationID(ctx),
	)
	return result, nil
}

// stateSnapshot is a full copy of the mutable session state, used to roll back
// an in-memory change whose remote write failed.
type stateSnapshot struct {
	game    *scoreboardtypes.Game
	names   map[scoreboardtypes.PlayerID]string
	buffer  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	shadow  map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	entered map[cellKey]struct{}
	dirty   bool
}

func (s *Session) snapshotLocked() stateSnapshot {
	names := make(map[scoreboardtypes.PlayerID]string, len(s.names))
	for k, v := range s.names {
		names[k] = v
	}
	entered := make(map[cellKey]struct{}, len(s.entered))
	for k := range s.entered {
		entered[k] = struct{}{}
	}
	return stateSnapshot{
		game:    s.game.Clone(),
		names:   names,
		buffer:  cloneCells(s.buffer),
		shadow:  cloneCells(s.shadow),
		entered: entered,
		dirty:   s.dirty,
	}
}

func (s *Session) restoreLocked(snap stateSnapshot) {
	s.game = snap.game
	s.names = snap.names
	s.buffer = snap.buffer
	s.shadow = snap.shadow
	s.entered = snap.entered
	s.dirty = snap.dirty
	s.reprojectLocked()
}
