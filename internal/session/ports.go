package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnswerStore is the write-through persistence port for a participant's
// answer map. The production implementation is Redis-backed so answers
// survive page reloads; tests use an in-memory fake.
type AnswerStore interface {
	// Load returns the persisted answer map, keyed by question ID.
	Load(ctx context.Context, participantID int) (map[string]int, error)
	// Save persists a single answer. Called synchronously with the
	// in-memory update so a crash never loses the latest answer.
	Save(ctx context.Context, participantID int, questionID string, optionIndex int) error
	// Clear removes the persisted answers after successful submission.
	Clear(ctx context.Context, participantID int) error
}

// SubmittedAnswer is one entry of the final submission payload. Unanswered
// questions carry OptionIndex -1.
type SubmittedAnswer struct {
	QuestionID  uuid.UUID `json:"question_id"`
	OptionIndex int       `json:"option_index"`
}

// Submission is the final payload handed to the ResultSink. It covers every
// question of the session, answered or not.
type Submission struct {
	ParticipantID   int               `json:"participant_id"`
	Answers         []SubmittedAnswer `json:"answers"`
	FinishReason    FinishReason      `json:"finish_reason"`
	CorrectCount    int               `json:"correct_count"`
	ScorePercentage int               `json:"score_percentage"`
	Passed          bool              `json:"passed"`
	FinishedAt      time.Time         `json:"finished_at"`
}

// ResultSink is the durable store accepting the final submission. Submit
// errors are retryable: the controller stays in FINISHING until a Submit
// succeeds (at-least-once semantics).
type ResultSink interface {
	Submit(ctx context.Context, sub Submission) error
}
