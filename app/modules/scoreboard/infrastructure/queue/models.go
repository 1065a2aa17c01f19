package scoreboardqueue

import (
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

// QueueName is the dedicated River queue for scoreboard jobs.
const QueueName = "scoreboard"

// ScoreMigrationJob moves the persisted scores of a renamed player.
type ScoreMigrationJob struct {
	GameID scoreboardtypes.GameID   `json:"game_id"`
	From   scoreboardtypes.PlayerID `json:"from"`
	To     scoreboardtypes.PlayerID `json:"to"`
}

// Kind returns the job type identifier for River
func (ScoreMigrationJob) Kind() string { return "score_migration" }

func (j ScoreMigrationJob) migrationJob() scoreboardservice.MigrationJob {
	return scoreboardservice.MigrationJob{GameID: j.GameID, From: j.From, To: j.To}
}

func newScoreMigrationJob(job scoreboardservice.MigrationJob) ScoreMigrationJob {
	return ScoreMigrationJob{GameID: job.GameID, From: job.From, To: job.To}
}
