// Package scoreboardevents defines the topics and payloads published by the
// scoreboard module.
package scoreboardevents

import (
	"time"

	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

const (
	ScoresSavedV1   = "scoreboard.scores.saved.v1"
	GameCompletedV1 = "scoreboard.game.completed.v1"
	PlayerRenamedV1 = "scoreboard.player.renamed.v1"
	RoundsChangedV1 = "scoreboard.round.changed.v1"
	GameDeletedV1   = "scoreboard.game.deleted.v1"
)

// ScoresSavedPayloadV1 summarises one reconciliation pass.
type ScoresSavedPayloadV1 struct {
	GameID  scoreboardtypes.GameID `json:"game_id"`
	Mode    string                 `json:"mode"`
	Created int                    `json:"created"`
	Updated int                    `json:"updated"`
	Deleted int                    `json:"deleted"`
	Failed  int                    `json:"failed"`
}

// GameCompletedPayloadV1 is published once a game transitions to completed.
type GameCompletedPayloadV1 struct {
	GameID       scoreboardtypes.GameID       `json:"game_id"`
	HostUserID   scoreboardtypes.UserID       `json:"host_user_id"`
	Winners      []scoreboardtypes.PlayerID   `json:"winners"`
	WinningScore int                          `json:"winning_score"`
	IsTie        bool                         `json:"is_tie"`
	WinCondition scoreboardtypes.WinCondition `json:"win_condition"`
	CompletedAt  time.Time                    `json:"completed_at"`
}

// PlayerRenamedPayloadV1 is published after the renamed game record is persisted.
type PlayerRenamedPayloadV1 struct {
	GameID scoreboardtypes.GameID   `json:"game_id"`
	From   scoreboardtypes.PlayerID `json:"from"`
	To     scoreboardtypes.PlayerID `json:"to"`
}

// RoundsChangedPayloadV1 is published after a round was added or removed.
// RemovedRound is zero for additions.
type RoundsChangedPayloadV1 struct {
	GameID       scoreboardtypes.GameID `json:"game_id"`
	RoundCount   int                    `json:"round_count"`
	RemovedRound int                    `json:"removed_round,omitempty"`
}

// GameDeletedPayloadV1 is published after a game and its scores were removed.
type GameDeletedPayloadV1 struct {
	GameID scoreboardtypes.GameID `json:"game_id"`
}
