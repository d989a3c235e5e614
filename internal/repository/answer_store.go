package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/ujicara/cbt-backend/internal/config"
)

// RedisAnswerStore is the production session.AnswerStore: a per-participant
// Redis hash holding the autosaved answer map. Every Save also queues the
// answer for durable UPSERT into PostgreSQL by the AnswerWorker, so Redis is
// the fast path and the database catches up asynchronously.
type RedisAnswerStore struct {
	rdb *redis.Client
}

// NewRedisAnswerStore creates a new RedisAnswerStore.
func NewRedisAnswerStore(rdb *redis.Client) *RedisAnswerStore {
	return &RedisAnswerStore{rdb: rdb}
}

// Load reads the persisted answer map for a participant. Entries that do not
// parse as option indexes are skipped.
func (s *RedisAnswerStore) Load(ctx context.Context, participantID int) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ParticipantAnswersKey(participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	answers := make(map[string]int, len(raw))
	for qid, v := range raw {
		opt, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		answers[qid] = opt
	}
	return answers, nil
}

// Save writes one answer through to the Redis hash and queues it for
// PostgreSQL persistence. The hash write is synchronous with the caller so a
// reload immediately after Save still sees the answer.
func (s *RedisAnswerStore) Save(ctx context.Context, participantID int, questionID string, optionIndex int) error {
	key := config.CacheKey.ParticipantAnswersKey(participantID)
	if err := s.rdb.HSet(ctx, key, questionID, strconv.Itoa(optionIndex)).Err(); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"participant_id": participantID,
		"question_id":    questionID,
		"option_index":   optionIndex,
	})
	// Queue push failure is non-fatal: the Redis hash already holds the
	// answer and the submission payload carries the full map anyway.
	_ = s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err()

	return nil
}

// Clear removes the persisted answers after a successful submission.
func (s *RedisAnswerStore) Clear(ctx context.Context, participantID int) error {
	return s.rdb.Del(ctx, config.CacheKey.ParticipantAnswersKey(participantID)).Err()
}
