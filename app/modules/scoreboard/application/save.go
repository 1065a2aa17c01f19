package scoreboardservice

import (
	"context"
	"errors"
	"fmt"

	scoreboardevents "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/events"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// SaveMode selects whether a save reports to Feedback.
type SaveMode int

const (
	// SaveSilent is used for autosaves; failures are only logged.
	SaveSilent SaveMode = iota
	// SaveInteractive reports the outcome to Feedback.
	SaveInteractive
)

func (m SaveMode) String() string {
	if m == SaveInteractive {
		return "interactive"
	}
	return "silent"
}

// Mutation kinds recorded per remote record operation.
const (
	MutationCreate = "create"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

// CellFailure is one record operation that the store rejected.
type CellFailure struct {
	PlayerID scoreboardtypes.PlayerID `json:"player_id"`
	Round    int                      `json:"round"`
	Op       string                   `json:"op"`
	Err      error                    `json:"-"`
	Message  string                   `json:"message"`
}

// SaveReport counts the record operations of one save.
type SaveReport struct {
	Mode     string        `json:"mode"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Failures []CellFailure `json:"failures,omitempty"`
}

// Mutations is the number of successful record operations.
func (r SaveReport) Mutations() int { return r.Created + r.Updated + r.Deleted }

// saveSnapshot is the state a save diffs against, copied under mu.
type saveSnapshot struct {
	players []scoreboardtypes.PlayerID
	rounds  int
	rows    map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell
	edits   uint64
}

type plannedOp struct {
	kind   string
	key    cellKey
	value  scoreboardtypes.Cell
	record scoreboardtypes.Score
}

// Save reconciles the projection against the persisted records with the
// fewest creates, updates and deletes. Record operations fail independently
// and are not rolled back; the buffer is kept until a save fully succeeds.
func (s *Session) Save(ctx context.Context, mode SaveMode) (SaveReport, error) {
	return withTelemetry(s, ctx, "Save", func(ctx context.Context) (SaveReport, error) {
		report, err := s.save(ctx, mode)
		if mode == SaveInteractive {
			if err != nil {
				s.deps.Feedback.SaveFailed(ctx, report, err)
			} else {
				s.deps.Feedback.SaveSucceeded(ctx, report)
			}
		}
		return report, err
	})
}

func (s *Session) save(ctx context.Context, mode SaveMode) (SaveReport, error) {
	report := SaveReport{Mode: mode.String()}

	snap, err := s.snapshotForSave(ctx)
	if err != nil {
		return report, err
	}

	existing, err := s.deps.Store.ListScores(ctx, scoreboardtypes.ScoreFilter{GameID: s.gameID})
	if err != nil {
		return report, fmt.Errorf("%w: list scores: %w", ErrStoreUnavailable, err)
	}

	ops := planSave(s.gameID, snap, indexScores(existing), s.currentUser(ctx))

	applied := make(map[cellKey]scoreboardtypes.Cell, len(ops))
	var errs []error
	for _, op := range ops {
		if err := s.execute(ctx, op); err != nil {
			s.logger.WarnContext(ctx, "Score record operation failed",
				attr.ExtractCorrelationID(ctx),
				attr.String("op", op.kind),
				attr.PlayerID("player_id", op.key.Player),
				attr.Int("round", op.key.Round),
				attr.Error(err),
			)
			report.Failures = append(report.Failures, CellFailure{
				PlayerID: op.key.Player,
				Round:    op.key.Round,
				Op:       op.kind,
				Err:      err,
				Message:  err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s %s round %d: %w", op.kind, op.key.Player, op.key.Round, err))
			continue
		}
		switch op.kind {
		case MutationCreate:
			report.Created++
		case MutationUpdate:
			report.Updated++
		case MutationDelete:
			report.Deleted++
		}
		applied[op.key] = op.value
	}

	s.commitSave(ctx, snap, applied, len(report.Failures) == 0)

	if report.Mutations() > 0 || len(report.Failures) > 0 {
		s.publish(ctx, scoreboardevents.ScoresSavedV1, scoreboardevents.ScoresSavedPayloadV1{
			GameID:  s.gameID,
			Mode:    report.Mode,
			Created: report.Created,
			Updated: report.Updated,
			Deleted: report.Deleted,
			Failed:  len(report.Failures),
		})
	}

	s.logger.InfoContext(ctx, "Scores saved",
		attr.ExtractCorrelationID(ctx),
		attr.String("mode", report.Mode),
		attr.Int("created", report.Created),
		attr.Int("updated", report.Updated),
		attr.Int("deleted", report.Deleted),
		attr.Int("failed", len(report.Failures)),
	)

	if len(errs) > 0 {
		return report, fmt.Errorf("%w: %w", ErrPartialSave, errors.Join(errs...))
	}
	return report, nil
}

func (s *Session) snapshotForSave(ctx context.Context) (saveSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditorLocked(ctx); err != nil {
		return saveSnapshot{}, err
	}
	snap := saveSnapshot{
		players: s.game.ScoringPlayers(),
		rounds:  s.game.RoundCount,
		rows:    make(map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, len(s.rows)),
		edits:   s.edits,
	}
	for _, id := range snap.players {
		snap.rows[id] = resizeCells(s.rows[id], snap.rounds)
	}
	return snap, nil
}

func indexScores(scores []scoreboardtypes.Score) map[cellKey]scoreboardtypes.Score {
	out := make(map[cellKey]scoreboardtypes.Score, len(scores))
	for _, sc := range scores {
		out[cellKey{Player: sc.PlayerID, Round: sc.RoundNumber}] = sc
	}
	return out
}

// planSave decides one operation per cell:
//
//	empty,  record present            delete
//	empty,  no record                 nothing
//	filled, no record                 create
//	filled, differs from the record   update
//	filled, equals the record         nothing
//
// Updates compare against the fetched record rather than the shadow: after a
// round removal the shadow is spliced while stored round numbers are not.
func planSave(
	gameID scoreboardtypes.GameID,
	snap saveSnapshot,
	existing map[cellKey]scoreboardtypes.Score,
	owner scoreboardtypes.UserID,
) []plannedOp {
	var ops []plannedOp
	for _, id := range snap.players {
		for round := 1; round <= snap.rounds; round++ {
			key := cellKey{Player: id, Round: round}
			value := snap.rows[id][round-1]
			record, exists := existing[key]

			if value.IsEmpty() {
				if exists {
					ops = append(ops, plannedOp{kind: MutationDelete, key: key, value: value, record: record})
				}
				continue
			}
			v, _ := value.Value()
			if !exists {
				ops = append(ops, plannedOp{kind: MutationCreate, key: key, value: value, record: scoreboardtypes.Score{
					ID:          scoreboardtypes.ScoreID(gameID, id, round),
					GameID:      gameID,
					PlayerID:    id,
					RoundNumber: round,
					Score:       v,
					Owner:       owner,
				}})
				continue
			}
			if record.Score != v {
				record.Score = v
				ops = append(ops, plannedOp{kind: MutationUpdate, key: key, value: value, record: record})
			}
		}
	}
	return ops
}

func (s *Session) execute(ctx context.Context, op plannedOp) error {
	var err error
	switch op.kind {
	case MutationCreate:
		_, err = s.deps.Store.CreateScore(ctx, op.record)
	case MutationUpdate:
		_, err = s.deps.Store.UpdateScore(ctx, op.record)
	case MutationDelete:
		_, err = s.deps.Store.DeleteScore(ctx, op.record)
	}
	s.deps.Metrics.RecordRemoteMutation(ctx, op.kind, err == nil)
	return err
}

// commitSave moves the applied values into the shadow. The buffer is cleared
// only when every operation succeeded and nothing was edited meanwhile.
func (s *Session) commitSave(ctx context.Context, snap saveSnapshot, applied map[cellKey]scoreboardtypes.Cell, complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.game.RoundCount != snap.rounds {
		s.logger.WarnContext(ctx, "Round dimension changed during save; shadow left for next refresh",
			attr.ExtractCorrelationID(ctx),
			attr.Int("saved_rounds", snap.rounds),
		)
		return
	}

	for key, value := range applied {
		row, ok := s.shadow[key.Player]
		if !ok {
			row = resizeCells(nil, s.game.RoundCount)
		}
		row = resizeCells(row, s.game.RoundCount)
		row[key.Round-1] = value
		s.shadow[key.Player] = row
	}

	if complete && s.edits == snap.edits {
		// The shadow now equals the saved rows, including cells that needed no
		// write, so the buffer can go.
		for id, cells := range snap.rows {
			if s.game.HasPlayer(id) {
				s.shadow[id] = cells
			}
		}
		clear(s.buffer)
		s.dirty = false
	}
	s.reprojectLocked()
}

func cloneCells(m map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell) map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell {
	out := make(map[scoreboardtypes.PlayerID][]scoreboardtypes.Cell, len(m))
	for id, cells := range m {
		out[id] = resizeCells(cells, len(cells))
	}
	return out
}
