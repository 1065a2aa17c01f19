// Package leaderboardservice keeps cross-game standings derived from completed
// scoreboards.
package leaderboardservice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("leaderboard data manager is closed")

// GameSource lists completed games, their scores and the registered users.
type GameSource interface {
	ListGames(ctx context.Context, filter scoreboardtypes.GameFilter) ([]*scoreboardtypes.Game, error)
	ListScores(ctx context.Context, filter scoreboardtypes.ScoreFilter) ([]scoreboardtypes.Score, error)
	ListUsers(ctx context.Context) ([]scoreboardtypes.User, error)
}

// EventSubscriber delivers bus messages to a handler until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, msg *message.Message) error) error
}

// Standing is one player's record across completed games.
type Standing struct {
	PlayerID    scoreboardtypes.PlayerID `json:"player_id"`
	Name        string                   `json:"name"`
	Wins        int                      `json:"wins"`
	Ties        int                      `json:"ties"`
	GamesPlayed int                      `json:"games_played"`
}

// DataManager recomputes standings whenever a game completes or is deleted
// and notifies subscribers after each recomputation. Construct one per
// process and pass it to the components that need it.
type DataManager struct {
	source GameSource
	events EventSubscriber
	logger *slog.Logger

	mu        sync.RWMutex
	standings []Standing
	updatedAt time.Time
	subs      map[int]chan struct{}
	nextSub   int
	closed    bool
	cancel    context.CancelFunc

	// recompute serialises whole recomputations.
	recompute sync.Mutex
}

// NewDataManager creates a manager. events may be nil, in which case
// standings only change through Recompute.
func NewDataManager(source GameSource, events EventSubscriber, logger *slog.Logger) *DataManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataManager{
		source: source,
		events: events,
		logger: logger.With(attr.String("component", "leaderboard_data_manager")),
		subs:   make(map[int]chan struct{}),
	}
}

// Start computes the initial standings and subscribes to game events. A
// failed initial computation is logged; the next event retries it.
func (m *DataManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.Recompute(ctx); err != nil {
		m.logger.WarnContext(ctx, "Initial leaderboard computation failed", attr.Error(err))
	}

	if m.events == nil {
		return nil
	}
	for _, topic := range []string{scoreboardevents.GameCompletedV1, scoreboardevents.GameDeletedV1} {
		if err := m.events.Subscribe(runCtx, topic, m.handle); err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func (m *DataManager) handle(ctx context.Context, msg *message.Message) error {
	m.logger.InfoContext(ctx, "Recomputing leaderboard",
		attr.String("message_id", msg.UUID),
		attr.ExtractCorrelationID(ctx),
	)
	return m.Recompute(ctx)
}

// Close ends the event subscriptions and closes every subscriber channel.
func (m *DataManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	return nil
}

// Standings returns a copy of the current standings, best first.
func (m *DataManager) Standings() []Standing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.standings)
}

// UpdatedAt is the time of the last successful recomputation.
func (m *DataManager) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt
}

// Subscribe returns a channel signalled after every recomputation and a
// function that ends the subscription. Signals coalesce when the reader lags.
func (m *DataManager) Subscribe() (<-chan struct{}, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan struct{}, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			close(c)
			delete(m.subs, id)
		}
	}
}

// Recompute rebuilds the standings from every completed game.
func (m *DataManager) Recompute(ctx context.Context) error {
	m.recompute.Lock()
	defer m.recompute.Unlock()

	games, err := m.source.ListGames(ctx, scoreboardtypes.GameFilter{Status: scoreboardtypes.GameStatusCompleted})
	if err != nil {
		return fmt.Errorf("failed to list completed games: %w", err)
	}

	outcomes := make([]gameOutcome, len(games))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, game := range games {
		g.Go(func() error {
			scores, err := m.source.ListScores(gctx, scoreboardtypes.ScoreFilter{GameID: game.ID})
			if err != nil {
				return fmt.Errorf("failed to list scores of game %s: %w", game.ID, err)
			}
			rows := scoreboardservice.Project(scoreboardservice.ProjectionInput{Game: game, Scores: scores})
			outcomes[i] = gameOutcome{
				players: game.ScoringPlayers(),
				outcome: scoreboardservice.ResolveWinner(rows, game.EffectiveWinCondition()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	names := map[scoreboardtypes.UserID]string{}
	if users, err := m.source.ListUsers(ctx); err != nil {
		m.logger.WarnContext(ctx, "Failed to load users for leaderboard names", attr.Error(err))
	} else {
		for _, u := range users {
			names[u.ID] = u.Name()
		}
	}

	standings := tally(outcomes, names)

	m.mu.Lock()
	m.standings = standings
	m.updatedAt = time.Now().UTC()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Leaderboard recomputed",
		attr.Int("games", len(games)),
		attr.Int("players", len(standings)),
	)
	return nil
}

type gameOutcome struct {
	players []scoreboardtypes.PlayerID
	outcome scoreboardtypes.Outcome
}

// tally counts a sole winner as a win and every tied winner as a tie.
func tally(outcomes []gameOutcome, names map[scoreboardtypes.UserID]string) []Standing {
	byID := map[scoreboardtypes.PlayerID]*Standing{}
	get := func(id scoreboardtypes.PlayerID) *Standing {
		s, ok := byID[id]
		if !ok {
			identity := scoreboardtypes.ParseIdentity(id)
			name := names[identity.UserID()]
			if name == "" {
				name = identity.DisplayName()
			}
			s = &Standing{PlayerID: id, Name: name}
			byID[id] = s
		}
		return s
	}

	for _, o := range outcomes {
		for _, id := range o.players {
			get(id).GamesPlayed++
		}
		for _, id := range o.outcome.Winners {
			if o.outcome.IsTie {
				get(id).Ties++
			} else {
				get(id).Wins++
			}
		}
	}

	out := make([]Standing, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Ties, a.Ties); c != 0 {
			return c
		}
		if c := cmp.Compare(a.GamesPlayed, b.GamesPlayed); c != 0 {
			return c
		}
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	return out
}
