package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujicara/cbt-backend/internal/model"
)

// ParticipantRepository handles participant account data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// GetByIdentifier retrieves a participant by their login identifier.
func (r *ParticipantRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, identifier, name, password_hash, created_at
		 FROM participants
		 WHERE identifier = $1`, identifier,
	).Scan(&p.ID, &p.Identifier, &p.Name, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a participant by primary key.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, identifier, name, password_hash, created_at
		 FROM participants
		 WHERE id = $1`, id,
	).Scan(&p.ID, &p.Identifier, &p.Name, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a participant account. Used by the seed tool.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO participants (identifier, name, password_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (identifier) DO UPDATE
		 SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash
		 RETURNING id, created_at`,
		p.Identifier, p.Name, p.PasswordHash,
	).Scan(&p.ID, &p.CreatedAt)
}
