package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctoringWorker consumes persist_proctoring_queue and batch-inserts the
// raw visibility/fullscreen audit trail into PostgreSQL.
type ProctoringWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewProctoringWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProctoringWorker {
	return &ProctoringWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "proctoring_worker").Logger(),
	}
}

type proctoringPayload struct {
	ParticipantID int    `json:"participant_id"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
}

func (w *ProctoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctoringWorker started")

	buffer := make([]*proctoringPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctoringQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var payload proctoringPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// If JSON is malformed, we CANNOT retry it. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *ProctoringWorker) flushSafe(ctx context.Context, batch []*proctoringPayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

		w.fallbackInsert(ctx, batch)
	}
}

func (w *ProctoringWorker) bulkInsert(ctx context.Context, batch []*proctoringPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		rows = append(rows, []interface{}{
			p.ParticipantID, p.EventType, parseOccurredAt(p.OccurredAt),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"proctoring_events"},
		[]string{"participant_id", "event_type", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ProctoringWorker) fallbackInsert(ctx context.Context, batch []*proctoringPayload) {
	requeueList := make([]*proctoringPayload, 0)

	for _, p := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO proctoring_events (participant_id, event_type, occurred_at)
             VALUES ($1, $2, $3)`,
			p.ParticipantID, p.EventType, parseOccurredAt(p.OccurredAt),
		)

		if err != nil {
			w.log.Error().Err(err).Int("participant_id", p.ParticipantID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ProctoringWorker) requeue(ctx context.Context, items []*proctoringPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistProctoringQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *ProctoringWorker) shutdown(buffer []*proctoringPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func parseOccurredAt(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now()
	}
	return t
}
