package domain

import "time"

// PageSize is the number of global leaderboard rows per view
const PageSize = 10

// DefaultPersonalCap is the number of personal slots a player keeps per mode
const DefaultPersonalCap = 10

// Payload carries the per-run fields recorded alongside a score. Only Score
// is interpreted; the rest are stored and echoed back.
type Payload struct {
	Mode  Mode  `json:"mode"`
	Score int64 `json:"score"`
	Jewel int64 `json:"jewel"`
	Level int64 `json:"level"`
	Class int64 `json:"class"`
	Time  int64 `json:"time"`
}

// RankingRecord is a global leaderboard entry
type RankingRecord struct {
	ID       string `json:"id"`
	PlayerID string `json:"player_id"`
	Payload
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonalSlot is one entry of a player's personal ranking list
type PersonalSlot struct {
	PlayerID string `json:"id"`
	Payload
}

// ScoreSubmission is a validated score entry request
type ScoreSubmission struct {
	PlayerID string `json:"player_id"`
	Payload
}

// Validate rejects submissions that must not reach any store
func (s ScoreSubmission) Validate() error {
	if s.PlayerID == "" {
		return ErrInvalidRequest
	}
	if !s.Mode.Valid() {
		return ErrInvalidMode
	}
	if s.Score < 0 {
		return ErrInvalidScore
	}
	return nil
}

// SubmissionOutcome describes what a submission did to the global board
type SubmissionOutcome string

const (
	OutcomeInserted SubmissionOutcome = "inserted"
	OutcomeImproved SubmissionOutcome = "improved"
	OutcomeRejected SubmissionOutcome = "rejected"
	OutcomeDisabled SubmissionOutcome = "disabled"
)

// SubmissionResult reports the effect of one submission
type SubmissionResult struct {
	Outcome        SubmissionOutcome `json:"outcome"`
	RecordID       string            `json:"record_id,omitempty"`
	PersonalStored bool              `json:"personal_stored"`
}

// ScoreEvent is emitted for every submission that reached the stores
type ScoreEvent struct {
	PlayerID  string            `json:"player_id"`
	RecordID  string            `json:"record_id,omitempty"`
	Mode      Mode              `json:"mode"`
	Score     int64             `json:"score"`
	Outcome   SubmissionOutcome `json:"outcome"`
	Timestamp time.Time         `json:"timestamp"`
}

// LeaderboardRow is one formatted row of a ranking view
type LeaderboardRow struct {
	Personal  bool   `json:"personal"`
	Page      int    `json:"page"`
	RecordID  string `json:"record_id,omitempty"`
	PlayerID  string `json:"player_id"`
	Rank      int    `json:"rank"`
	RankClass int    `json:"rank_class"`
	Lit       bool   `json:"lit"`
	Payload
}

// RankingView is one page of a leaderboard
type RankingView struct {
	Page  int              `json:"page"`
	Total int              `json:"total"`
	Rows  []LeaderboardRow `json:"rows"`
}
