package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujicara/cbt-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListAll retrieves the full question set in position order, including the
// scoring key. Participant-facing payloads are derived from this server-side.
func (r *QuestionRepository) ListAll(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_option, position
		 FROM questions
		 ORDER BY position ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var optionsJSON []byte
		if err := rows.Scan(&q.ID, &q.Prompt, &optionsJSON, &q.CorrectOption, &q.Position); err != nil {
			return nil, err
		}
		var opts []string
		if err := json.Unmarshal(optionsJSON, &opts); err != nil {
			return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
		}
		if len(opts) != model.OptionCount {
			return nil, fmt.Errorf("question %s has %d options, expected %d", q.ID, len(opts), model.OptionCount)
		}
		copy(q.Options[:], opts)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Replace swaps the entire question set inside one transaction. Used by the
// seed tool; the set is immutable while sessions are live.
func (r *QuestionRepository) Replace(ctx context.Context, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	for _, q := range questions {
		optionsJSON, err := json.Marshal(q.Options[:])
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (id, prompt, options, correct_option, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			q.ID, q.Prompt, optionsJSON, q.CorrectOption, q.Position,
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	return tx.Commit(ctx)
}
