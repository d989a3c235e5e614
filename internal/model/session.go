package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates persisted exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession represents a participant's exam attempt as stored in PostgreSQL.
type ExamSession struct {
	ID              uuid.UUID     `json:"id"`
	ParticipantID   int           `json:"participant_id"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Status          SessionStatus `json:"status"`
	FinishReason    *string       `json:"finish_reason,omitempty"`
	CorrectCount    *int          `json:"correct_count,omitempty"`
	ScorePercentage *int          `json:"score_percentage,omitempty"`
	Passed          *bool         `json:"passed,omitempty"`
}

// AttemptStatus is the pre-exam session status query result.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStarted    AttemptStatus = "STARTED"
	AttemptFinished   AttemptStatus = "FINISHED"
)
