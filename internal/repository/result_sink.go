package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/session"
)

// QueueResultSink is the production session.ResultSink: it enqueues the
// final submission onto a Redis list for the SubmissionWorker to persist.
// The push is the durability boundary — once it succeeds the attempt cannot
// be lost, and the worker retries PostgreSQL on its own schedule. A failed
// push keeps the controller in FINISHING so the participant can retry.
type QueueResultSink struct {
	rdb *redis.Client
}

// NewQueueResultSink creates a new QueueResultSink.
func NewQueueResultSink(rdb *redis.Client) *QueueResultSink {
	return &QueueResultSink{rdb: rdb}
}

// Submit enqueues the submission payload.
func (s *QueueResultSink) Submit(ctx context.Context, sub session.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue submission: %w", err)
	}
	return nil
}
