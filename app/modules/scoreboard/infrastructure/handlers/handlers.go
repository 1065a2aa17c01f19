// Package scoreboardhandlers exposes scoreboard sessions over HTTP.
package scoreboardhandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	leaderboardservice "github.com/scorecard-club/scorecard/app/modules/leaderboard/application"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	scoreboardexport "github.com/scorecard-club/scorecard/app/modules/scoreboard/infrastructure/export"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// GameCreator persists new games.
type GameCreator interface {
	CreateGame(ctx context.Context, game *scoreboardtypes.Game) (*scoreboardtypes.Game, error)
}

// Standings reports the cross-game leaderboard.
type Standings interface {
	Standings() []leaderboardservice.Standing
}

// Handlers serves the scoreboard HTTP API.
type Handlers struct {
	sessions    *scoreboardservice.SessionManager
	games       GameCreator
	leaderboard Standings
	logger      *slog.Logger
	maxRounds   int
}

// NewHandlers wires the HTTP API. leaderboard may be nil.
func NewHandlers(sessions *scoreboardservice.SessionManager, games GameCreator, leaderboard Standings, logger *slog.Logger) *Handlers {
	return &Handlers{sessions: sessions, games: games, leaderboard: leaderboard, logger: logger}
}

// WithDefaultMaxRounds sets the round limit of games created without one.
func (h *Handlers) WithDefaultMaxRounds(n int) *Handlers {
	h.maxRounds = n
	return h
}

// Routes registers every endpoint on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/games", h.CreateGame)
	r.Route("/games/{gameID}", func(r chi.Router) {
		r.Get("/board", h.Board)
		r.Post("/refresh", h.Refresh)
		r.Put("/cells/{playerID}/{round}", h.SetCell)
		r.Post("/save", h.Save)
		r.Post("/rounds", h.AddRound)
		r.Delete("/rounds/{round}", h.RemoveRound)
		r.Post("/players/{playerID}/rename", h.Rename)
		r.Get("/winner", h.Winner)
		r.Post("/complete", h.Complete)
		r.Get("/celebrate", h.Celebrate)
		r.Delete("/", h.DeleteGame)
		r.Get("/export.xlsx", h.ExportXLSX)
		r.Get("/chart.png", h.Chart)
	})
	r.Get("/leaderboard", h.Leaderboard)
}

// BoardResponse is the projected scoreboard as seen by the caller.
type BoardResponse struct {
	GameID     scoreboardtypes.GameID     `json:"game_id"`
	Status     scoreboardtypes.GameStatus `json:"status"`
	RoundCount int                        `json:"round_count"`
	MaxRounds  int                        `json:"max_rounds"`
	Rows       []scoreboardservice.Row    `json:"rows"`
	Dirty      bool                       `json:"dirty"`
	Complete   bool                       `json:"complete"`
	CanEdit    bool                       `json:"can_edit"`
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: message(err, status)}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Scoreboard request failed",
			attr.String("path", r.URL.Path),
			attr.ExtractCorrelationID(r.Context()),
			attr.Error(err))
	}
	writeJSON(w, status, resp)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*scoreboardservice.Session, bool) {
	s, err := h.sessions.Get(r.Context(), scoreboardtypes.GameID(chi.URLParam(r, "gameID")))
	if err != nil {
		// A game that was never loaded here is missing, not gone.
		if errors.Is(err, scoreboardservice.ErrGameGone) {
			err = scoreboardservice.ErrNotFound
		}
		h.fail(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) board(ctx context.Context, s *scoreboardservice.Session) (BoardResponse, error) {
	game, err := s.Game()
	if err != nil {
		return BoardResponse{}, err
	}
	return BoardResponse{
		GameID:     game.ID,
		Status:     game.Status,
		RoundCount: game.RoundCount,
		MaxRounds:  game.EffectiveMaxRounds(),
		Rows:       s.Rows(),
		Dirty:      s.IsDirty(),
		Complete:   s.IsComplete(),
		CanEdit:    s.CanEdit(ctx),
	}, nil
}

func (h *Handlers) writeBoard(w http.ResponseWriter, r *http.Request, s *scoreboardservice.Session, status int) {
	resp, err := h.board(r.Context(), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, resp)
}

type createGameRequest struct {
	Players      []scoreboardtypes.PlayerID                              `json:"players"`
	RoundCount   int                                                     `json:"round_count"`
	MaxRounds    int                                                     `json:"max_rounds"`
	WinCondition scoreboardtypes.WinCondition                            `json:"win_condition"`
	CustomRules  string                                                  `json:"custom_rules"`
	Hierarchy    map[scoreboardtypes.PlayerID][]scoreboardtypes.PlayerID `json:"hierarchy"`
}

func (r createGameRequest) validate() error {
	if len(r.Players) == 0 {
		return errors.New("a game needs at least one player")
	}
	seen := make(map[scoreboardtypes.PlayerID]bool, len(r.Players))
	for _, p := range r.Players {
		if strings.TrimSpace(string(p)) == "" {
			return scoreboardservice.ErrEmptyName
		}
		if seen[p] {
			return scoreboardservice.ErrDuplicatePlayer
		}
		seen[p] = true
	}
	limit := r.MaxRounds
	if limit <= 0 {
		limit = scoreboardtypes.DefaultMaxRounds
	}
	if r.RoundCount < 1 || r.RoundCount > limit {
		return scoreboardservice.ErrRoundOutOfRange
	}
	if r.CustomRules != "" {
		if _, err := scoreboardtypes.ParseCustomRules(r.CustomRules); err != nil {
			return err
		}
	}
	return validateHierarchy(r.Hierarchy, seen)
}

// validateHierarchy requires every child to have exactly one parent and no
// player to be both a parent and a child.
func validateHierarchy(h map[scoreboardtypes.PlayerID][]scoreboardtypes.PlayerID, players map[scoreboardtypes.PlayerID]bool) error {
	parentOf := make(map[scoreboardtypes.PlayerID]scoreboardtypes.PlayerID)
	for parent, children := range h {
		if !players[parent] {
			return scoreboardservice.ErrUnknownPlayer
		}
		for _, c := range children {
			if !players[c] {
				return scoreboardservice.ErrUnknownPlayer
			}
			if c == parent {
				return fmt.Errorf("%w: %s is its own child", scoreboardservice.ErrInvalidHierarchy, c)
			}
			if other, ok := parentOf[c]; ok {
				return fmt.Errorf("%w: %s is listed under %s and %s", scoreboardservice.ErrInvalidHierarchy, c, other, parent)
			}
			parentOf[c] = parent
		}
	}
	for c := range parentOf {
		if _, ok := h[c]; ok {
			return fmt.Errorf("%w: %s is both a parent and a child", scoreboardservice.ErrInvalidHierarchy, c)
		}
	}
	return nil
}

// CreateGame creates a game hosted by the authenticated caller.
func (h *Handlers) CreateGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	host, ok := UserFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.MaxRounds <= 0 {
		req.MaxRounds = h.maxRounds
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	game, err := h.games.CreateGame(ctx, &scoreboardtypes.Game{
		ID:           scoreboardtypes.GameID(uuid.NewString()),
		HostUserID:   host,
		PlayerIDs:    req.Players,
		RoundCount:   req.RoundCount,
		MaxRounds:    req.MaxRounds,
		Status:       scoreboardtypes.GameStatusActive,
		WinCondition: req.WinCondition,
		CustomRules:  req.CustomRules,
		Hierarchy:    req.Hierarchy,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.sessions.Get(ctx, game.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusCreated)
}

// Board returns the caller's projected scoreboard.
func (h *Handlers) Board(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

// Refresh reloads the scoreboard from the store. Pending edits are kept.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Refresh(r.Context(), scoreboardtypes.GameID(chi.URLParam(r, "gameID")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

type cellRequest struct {
	Value json.RawMessage `json:"value"`
	Token *string         `json:"token"`
}

// SetCell edits one cell in the caller's buffer. {"value": null} clears it.
func (h *Handlers) SetCell(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	player := scoreboardtypes.PlayerID(chi.URLParam(r, "playerID"))
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		h.fail(w, r, scoreboardservice.ErrRoundOutOfRange)
		return
	}

	var req cellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	switch {
	case req.Token != nil:
		err = s.SetToken(ctx, player, round, *req.Token)
	case bytes.Equal(req.Value, []byte("null")):
		err = s.ClearCell(ctx, player, round)
	case len(req.Value) > 0:
		var v int
		if uerr := json.Unmarshal(req.Value, &v); uerr != nil {
			h.fail(w, r, scoreboardservice.ErrInvalidScore)
			return
		}
		err = s.SetCell(ctx, player, round, scoreboardtypes.Filled(v))
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value or token is required"})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

// Save reconciles the caller's buffer with the store.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	report, err := s.Save(r.Context(), scoreboardservice.SaveInteractive)
	if err != nil {
		status := statusFor(err)
		writeJSON(w, status, errorResponse{Error: message(err, status), Report: &report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AddRound appends an empty round.
func (h *Handlers) AddRound(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.AddRound(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

// RemoveRound removes one round and its records.
func (h *Handlers) RemoveRound(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		h.fail(w, r, scoreboardservice.ErrRoundOutOfRange)
		return
	}
	if err := s.RemoveRound(r.Context(), round); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

type renameRequest struct {
	Name string `json:"name"`
}

// Rename renames an anonymous player and migrates their scores.
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	from := scoreboardtypes.PlayerID(chi.URLParam(r, "playerID"))
	if err := s.Rename(r.Context(), from, scoreboardtypes.PlayerID(req.Name)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBoard(w, r, s, http.StatusOK)
}

// Winner resolves the winner of a fully scored game.
func (h *Handlers) Winner(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	outcome, err := s.Winner()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse(outcome))
}

// Complete marks the game completed and returns its outcome.
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	outcome, err := s.Complete(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse(outcome))
}

// Celebrate reports whether the completion celebration should be shown now.
func (h *Handlers) Celebrate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	show, err := s.ShouldCelebrate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"celebrate": show})
}

// DeleteGame removes the game and its scores.
func (h *Handlers) DeleteGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.DeleteGame(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessions.Forget(s.GameID())
	w.WriteHeader(http.StatusNoContent)
}

// ExportXLSX downloads the projected board as a spreadsheet.
func (h *Handlers) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := scoreboardexport.WriteXLSX(&buf, s.RoundCount(), s.Rows()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scoreboard-"+string(s.GameID())+".xlsx"))
	_, _ = w.Write(buf.Bytes())
}

// Chart renders the running totals per round.
func (h *Handlers) Chart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	png, err := scoreboardexport.ProgressionChart(s.RoundCount(), s.Rows())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// Leaderboard returns cross-game standings.
func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	standings := []leaderboardservice.Standing{}
	if h.leaderboard != nil {
		standings = h.leaderboard.Standings()
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": standings})
}

type outcomeJSON struct {
	Winners      []scoreboardtypes.PlayerID `json:"winners"`
	WinningScore int                        `json:"winning_score"`
	IsTie        bool                       `json:"is_tie"`
}

func outcomeResponse(o scoreboardtypes.Outcome) outcomeJSON {
	winners := o.Winners
	if winners == nil {
		winners = []scoreboardtypes.PlayerID{}
	}
	return outcomeJSON{Winners: winners, WinningScore: o.WinningScore, IsTie: o.IsTie}
}
