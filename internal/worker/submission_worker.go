package worker

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/session"
)

const (
	SubmissionBatchSize    = 50
	SubmissionBatchTimeout = 2 * time.Second
	SubmissionPollTimeout  = 1 * time.Second
)

// SubmissionWorker consumes persist_submissions_queue and marks exam sessions
// COMPLETED in PostgreSQL with their final score. The full answer set of each
// submission is persisted alongside so results survive Redis flushes.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]*session.Submission, 0, SubmissionBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= SubmissionBatchSize || time.Since(lastFlush) >= SubmissionBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, SubmissionPollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var sub session.Submission
			if err := json.Unmarshal([]byte(item[1]), &sub); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &sub)
		}
	}
}

// ----------------------------------------------------------------
// Batch Update Wrapper
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*session.Submission) {
	if len(batch) == 0 {
		return
	}

	w.rescore(ctx, batch)

	if err := w.bulkCompleteSessions(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk session completion failed, using fallback")

		for _, sub := range batch {
			if err := w.persistSingle(ctx, sub); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(sub)
				w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw)
				continue
			}
			w.persistAnswers(ctx, sub)
		}
		return
	}

	for _, sub := range batch {
		w.persistAnswers(ctx, sub)
	}

	// After successful completion → delete autosave buffers in Redis.
	w.bulkClearAutosavedAnswers(ctx, batch)
}

// ----------------------------------------------------------------
// Authoritative rescoring against the cached answer key
// ----------------------------------------------------------------

// rescore recomputes each submission's result from the warmed answer-key
// hash. The controller-computed score in the payload is provisional; the
// persisted one is always derived server-side. When the hash is unavailable
// the provisional score is kept rather than stalling the batch.
func (w *SubmissionWorker) rescore(ctx context.Context, batch []*session.Submission) {
	answerKey, err := w.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey()).Result()
	if err != nil || len(answerKey) == 0 {
		w.log.Warn().Err(err).Msg("answer key unavailable, keeping provisional scores")
		return
	}

	passingGrade, havePassingGrade := w.passingGrade(ctx)

	for _, sub := range batch {
		correct, percentage := scoreAgainstKey(sub.Answers, answerKey)
		sub.CorrectCount = correct
		sub.ScorePercentage = percentage
		if havePassingGrade {
			sub.Passed = percentage >= passingGrade
		}
	}
}

// scoreAgainstKey grades one answer set against the answer-key hash
// (question id → correct option, as stored by the cache warmer).
func scoreAgainstKey(answers []session.SubmittedAnswer, answerKey map[string]string) (correct, percentage int) {
	for _, ans := range answers {
		if ans.OptionIndex < 0 {
			continue
		}
		if want, ok := answerKey[ans.QuestionID.String()]; ok && want == strconv.Itoa(ans.OptionIndex) {
			correct++
		}
	}
	if len(answerKey) > 0 {
		percentage = int(math.Round(100 * float64(correct) / float64(len(answerKey))))
	}
	return correct, percentage
}

func (w *SubmissionWorker) passingGrade(ctx context.Context) (int, bool) {
	var raw string
	err := w.pool.QueryRow(ctx,
		`SELECT value FROM app_settings WHERE key = $1`, model.SettingPassingGrade,
	).Scan(&raw)
	if err != nil {
		return 0, false
	}
	pct, err := strconv.Atoi(raw)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *SubmissionWorker) bulkCompleteSessions(ctx context.Context, batch []*session.Submission) error {
	n := len(batch)

	participants := make([]int, 0, n)
	reasons := make([]string, 0, n)
	corrects := make([]int, 0, n)
	percentages := make([]int, 0, n)
	passeds := make([]bool, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, sub := range batch {
		participants = append(participants, sub.ParticipantID)
		reasons = append(reasons, string(sub.FinishReason))
		corrects = append(corrects, sub.CorrectCount)
		percentages = append(percentages, sub.ScorePercentage)
		passeds = append(passeds, sub.Passed)
		finishedAts = append(finishedAts, sub.FinishedAt)
	}

	query := `
		UPDATE exam_sessions AS s
		SET status = 'COMPLETED',
		    finish_reason = t.finish_reason,
		    correct_count = t.correct_count,
		    score_percentage = t.score_percentage,
		    passed = t.passed,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.participant_id,
				u.finish_reason,
				u.correct_count,
				u.score_percentage,
				u.passed,
				u.finished_at
			FROM UNNEST(
				$1::int[],
				$2::text[],
				$3::int[],
				$4::int[],
				$5::bool[],
				$6::timestamptz[]
			) AS u (participant_id, finish_reason, correct_count, score_percentage, passed, finished_at)
		) AS t
		WHERE s.participant_id = t.participant_id
		  AND s.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, participants, reasons, corrects, percentages, passeds, finishedAts)
	return err
}

// persistAnswers UPSERTs the final answer set of one submission. Best effort:
// the session row already carries the score, the per-question rows feed the
// review screen.
func (w *SubmissionWorker) persistAnswers(ctx context.Context, sub *session.Submission) {
	for _, ans := range sub.Answers {
		if ans.OptionIndex < 0 {
			continue
		}
		_, err := w.pool.Exec(ctx,
			`INSERT INTO participant_answers (participant_id, question_id, option_index)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (participant_id, question_id) DO UPDATE
			 SET option_index = EXCLUDED.option_index, updated_at = NOW()`,
			sub.ParticipantID, ans.QuestionID, ans.OptionIndex,
		)
		if err != nil {
			w.log.Warn().Err(err).
				Int("participant_id", sub.ParticipantID).
				Msg("final answer upsert failed")
			return
		}
	}
}

// ----------------------------------------------------------------
// BULK Redis DEL for clearing per-participant session keys
// ----------------------------------------------------------------

func (w *SubmissionWorker) bulkClearAutosavedAnswers(ctx context.Context, batch []*session.Submission) {
	pipe := w.rdb.Pipeline()

	for _, sub := range batch {
		pipe.Del(ctx,
			config.CacheKey.ParticipantAnswersKey(sub.ParticipantID),
			config.CacheKey.ParticipantSessionStartKey(sub.ParticipantID),
			config.CacheKey.ParticipantQuestionOrderKey(sub.ParticipantID),
		)
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *SubmissionWorker) persistSingle(ctx context.Context, sub *session.Submission) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = 'COMPLETED',
		     finish_reason = $1,
		     correct_count = $2,
		     score_percentage = $3,
		     passed = $4,
		     finished_at = $5
		 WHERE participant_id = $6 AND status = 'IN_PROGRESS'`,
		string(sub.FinishReason), sub.CorrectCount, sub.ScorePercentage, sub.Passed, sub.FinishedAt, sub.ParticipantID,
	)

	return err
}
