package model

import (
	"github.com/google/uuid"
)

// OptionCount is the fixed number of answer options per question (A–D).
const OptionCount = 4

// UnansweredOption is the sentinel option index submitted for a question
// the participant never answered.
const UnansweredOption = -1

// Question represents a single exam question, including the scoring key.
// The correct option never leaves the server.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"prompt"`
	Options       [4]string `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Position      int       `json:"position"`
}

// QuestionForParticipant is a question without the correct option,
// safe to send to the exam taker.
type QuestionForParticipant struct {
	ID      uuid.UUID `json:"id"`
	Prompt  string    `json:"prompt"`
	Options [4]string `json:"options"`
}

// ExamPaper is the Redis-cached payload sent to participants.
type ExamPaper struct {
	ExamName  string                   `json:"exam_name"`
	Questions []QuestionForParticipant `json:"questions"`
}
