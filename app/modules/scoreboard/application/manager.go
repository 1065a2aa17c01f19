package scoreboardservice

import (
	"context"
	"errors"
	"sync"
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

type sessionKey struct {
	game scoreboardtypes.GameID
	user scoreboardtypes.UserID
}

// DefaultSessionIdleTTL is how long an unused session is kept.
const DefaultSessionIdleTTL = 30 * time.Minute

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// SessionManager owns one Session per game and viewing user. Sessions unused
// for longer than the idle TTL are dropped unless they hold unsaved edits.
type SessionManager struct {
	deps    Deps
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*sessionEntry
}

// NewSessionManager creates a manager whose sessions share deps.
func NewSessionManager(deps Deps) *SessionManager {
	return &SessionManager{
		deps:     deps.withDefaults(),
		idleTTL:  DefaultSessionIdleTTL,
		now:      time.Now,
		sessions: map[sessionKey]*sessionEntry{},
	}
}

// WithIdleTTL sets how long an unused session is kept. Non-positive values
// keep the default.
func (m *SessionManager) WithIdleTTL(d time.Duration) *SessionManager {
	if d > 0 {
		m.idleTTL = d
	}
	return m
}

func (m *SessionManager) key(ctx context.Context, gameID scoreboardtypes.GameID) sessionKey {
	k := sessionKey{game: gameID}
	if m.deps.Users != nil {
		k.user, _ = m.deps.Users.CurrentUser(ctx)
	}
	return k
}

// Get returns the caller's session for gameID, creating and refreshing it on
// first use. A session whose game is gone is dropped.
func (m *SessionManager) Get(ctx context.Context, gameID scoreboardtypes.GameID) (*Session, error) {
	k := m.key(ctx, gameID)

	m.mu.Lock()
	now := m.now()
	m.pruneLocked(now)
	e, ok := m.sessions[k]
	if ok {
		e.lastUsed = now
	}
	m.mu.Unlock()
	if ok {
		return e.session, nil
	}

	s := NewSession(gameID, m.deps)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[k]; ok {
		existing.lastUsed = m.now()
		return existing.session, nil
	}
	m.sessions[k] = &sessionEntry{session: s, lastUsed: m.now()}
	return s, nil
}

// pruneLocked drops idle sessions without pending edits. mu must be held.
func (m *SessionManager) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.idleTTL)
	for k, e := range m.sessions {
		if e.lastUsed.Before(cutoff) && !e.session.IsDirty() {
			delete(m.sessions, k)
		}
	}
}

// Refresh reloads the caller's session, dropping it if the game is gone.
func (m *SessionManager) Refresh(ctx context.Context, gameID scoreboardtypes.GameID) (*Session, error) {
	s, err := m.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		if errors.Is(err, ErrGameGone) {
			m.Forget(gameID)
		}
		return nil, err
	}
	return s, nil
}

// Forget drops every session of gameID.
func (m *SessionManager) Forget(gameID scoreboardtypes.GameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.sessions {
		if k.game == gameID {
			delete(m.sessions, k)
		}
	}
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
