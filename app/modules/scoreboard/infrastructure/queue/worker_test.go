package scoreboardqueue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	jobs   []scoreboardservice.MigrationJob
	result scoreboardservice.MigrationResult
	err    error
}

func (f *fakeMigrator) Migrate(_ context.Context, job scoreboardservice.MigrationJob) (scoreboardservice.MigrationResult, error) {
	f.jobs = append(f.jobs, job)
	return f.result, f.err
}

func newJob(args ScoreMigrationJob) *river.Job[ScoreMigrationJob] {
	return &river.Job[ScoreMigrationJob]{
		JobRow: &rivertype.JobRow{ID: 7, Attempt: 1},
		Args:   args,
	}
}

func TestScoreMigrationWorker_Work(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	args := ScoreMigrationJob{GameID: "g1", From: "Alice", To: "Alicia"}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "migrates", err: nil},
		{name: "partial failure is retried", err: scoreboardservice.ErrPartialSave, wantErr: true},
		{name: "store failure is retried", err: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{err: tt.err, result: scoreboardservice.MigrationResult{Updated: 2}}
			w := NewScoreMigrationWorker(logger, m)

			err := w.Work(context.Background(), newJob(args))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			require.Len(t, m.jobs, 1)
			assert.Equal(t, scoreboardservice.MigrationJob{GameID: "g1", From: "Alice", To: "Alicia"}, m.jobs[0])
		})
	}
}

func TestScoreMigrationJob_Args(t *testing.T) {
	job := newScoreMigrationJob(scoreboardservice.MigrationJob{GameID: "g1", From: "a", To: "b"})
	assert.Equal(t, "score_migration", job.Kind())

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"game_id":"g1","from":"a","to":"b"}`, string(raw))

	opts := insertOpts()
	assert.Equal(t, QueueName, opts.Queue)
	assert.Equal(t, 5, opts.MaxAttempts)
}
