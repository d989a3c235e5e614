package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujicara/cbt-backend/internal/model"
)

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByParticipant retrieves the participant's attempt, if any.
func (r *SessionRepository) GetByParticipant(ctx context.Context, participantID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, participant_id, started_at, finished_at, status,
		        finish_reason, correct_count, score_percentage, passed
		 FROM exam_sessions
		 WHERE participant_id = $1`, participantID,
	).Scan(&s.ID, &s.ParticipantID, &s.StartedAt, &s.FinishedAt, &s.Status,
		&s.FinishReason, &s.CorrectCount, &s.ScorePercentage, &s.Passed)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new attempt row (participant starts the exam). The start
// timestamp is issued by the database, never by the client. ON CONFLICT DO
// NOTHING makes concurrent starts collapse onto the first row.
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (participant_id, status)
		 VALUES ($1, $2)
		 ON CONFLICT (participant_id) DO NOTHING
		 RETURNING id, started_at`,
		s.ParticipantID, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt)
}

// ListResults retrieves all attempts joined with participant identity,
// newest first.
func (r *SessionRepository) ListResults(ctx context.Context) ([]Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.identifier, p.name,
		        es.status, es.finish_reason, es.correct_count, es.score_percentage,
		        es.passed, es.started_at, es.finished_at
		 FROM exam_sessions es
		 JOIN participants p ON es.participant_id = p.id
		 ORDER BY es.started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(
			&res.ParticipantID, &res.Identifier, &res.Name,
			&res.Status, &res.FinishReason, &res.CorrectCount, &res.ScorePercentage,
			&res.Passed, &res.StartedAt, &res.FinishedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Result combines participant identity with their attempt outcome.
type Result struct {
	ParticipantID   int                 `json:"participant_id"`
	Identifier      string              `json:"identifier"`
	Name            string              `json:"name"`
	Status          model.SessionStatus `json:"status"`
	FinishReason    *string             `json:"finish_reason,omitempty"`
	CorrectCount    *int                `json:"correct_count,omitempty"`
	ScorePercentage *int                `json:"score_percentage,omitempty"`
	Passed          *bool               `json:"passed,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
}
