package worker

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/ujicara/cbt-backend/internal/session"
)

func TestScoreAgainstKey(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	// Key as the cache warmer stores it: question id → correct option.
	answerKey := map[string]string{
		ids[0].String(): "0",
		ids[1].String(): "1",
		ids[2].String(): "2",
		ids[3].String(): "3",
	}

	answers := []session.SubmittedAnswer{
		{QuestionID: ids[0], OptionIndex: 0},  // correct
		{QuestionID: ids[1], OptionIndex: 1},  // correct
		{QuestionID: ids[2], OptionIndex: 0},  // wrong
		{QuestionID: ids[3], OptionIndex: -1}, // unanswered sentinel
	}

	correct, percentage := scoreAgainstKey(answers, answerKey)
	if correct != 2 {
		t.Fatalf("correct %d, want 2", correct)
	}
	if percentage != 50 {
		t.Fatalf("percentage %d, want 50", percentage)
	}
}

func TestScoreAgainstKeyIgnoresUnknownQuestions(t *testing.T) {
	known := uuid.New()
	answerKey := map[string]string{known.String(): "2"}

	// A tampered payload with a question outside the key must not score.
	answers := []session.SubmittedAnswer{
		{QuestionID: known, OptionIndex: 2},
		{QuestionID: uuid.New(), OptionIndex: 2},
	}

	correct, percentage := scoreAgainstKey(answers, answerKey)
	if correct != 1 {
		t.Fatalf("correct %d, want 1", correct)
	}
	if percentage != 100 {
		t.Fatalf("percentage %d, want 100", percentage)
	}
}

func TestScoreAgainstKeyDenominatorIsTheKey(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	answerKey := make(map[string]string, len(ids))
	for i, id := range ids {
		answerKey[id.String()] = strconv.Itoa(i)
	}

	// Partial payload: the percentage is still over the full question set.
	answers := []session.SubmittedAnswer{{QuestionID: ids[0], OptionIndex: 0}}

	correct, percentage := scoreAgainstKey(answers, answerKey)
	if correct != 1 {
		t.Fatalf("correct %d, want 1", correct)
	}
	if percentage != 33 {
		t.Fatalf("percentage %d, want 33", percentage)
	}
}
