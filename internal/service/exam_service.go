package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/repository"
)

// Domain errors.
var (
	ErrNoQuestions = errors.New("no questions available")
)

// ExamService is the question provider: it owns the question set and its
// Redis-cached, participant-facing projection (scoring keys withheld).
type ExamService struct {
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(questionRepo *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Questions loads the full question set, including scoring keys. Server-side
// use only.
func (s *ExamService) Questions(ctx context.Context) ([]model.Question, error) {
	return s.questionRepo.ListAll(ctx)
}

// WarmCache loads the question set from PostgreSQL into Redis: the
// participant payload and the answer-key hash. Called at startup so the hot
// path never touches PostgreSQL under a thundering herd of participants.
func (s *ExamService) WarmCache(ctx context.Context, examName string) error {
	questions, err := s.questionRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	participantQuestions := make([]model.QuestionForParticipant, len(questions))
	for i, q := range questions {
		participantQuestions[i] = model.QuestionForParticipant{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
		}
	}

	paper := model.ExamPaper{
		ExamName:  examName,
		Questions: participantQuestions,
	}
	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectOption
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(), paperJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey())
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Info().Int("questions", len(questions)).Msg("Exam cache warmed")
	return nil
}

// GetPaper returns the cached participant-facing paper.
func (s *ExamService) GetPaper(ctx context.Context) (*model.ExamPaper, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoQuestions
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.ExamPaper
	if err := json.Unmarshal([]byte(raw), &paper); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	return &paper, nil
}
