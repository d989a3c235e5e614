package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/repository"
	"github.com/ujicara/cbt-backend/internal/session"
)

// Attempt lifecycle errors.
var (
	ErrAttemptNotStarted = errors.New("attempt not started")
	ErrAttemptFinished   = errors.New("attempt already finished")
)

// PortalService drives the participant-facing exam lifecycle: the pre-exam
// status query, starting an attempt, resuming after a reload, and serving
// the paper in the participant's fixed session order. It owns controller
// construction and registration with the session manager.
type PortalService struct {
	sessionRepo    *repository.SessionRepository
	examService    *ExamService
	settingService *SettingService
	manager        *session.Manager
	store          session.AnswerStore
	sink           session.ResultSink
	rdb            *redis.Client
	cfg            *config.Config
	log            zerolog.Logger
}

// NewPortalService creates a new PortalService.
func NewPortalService(
	sessionRepo *repository.SessionRepository,
	examService *ExamService,
	settingService *SettingService,
	manager *session.Manager,
	store session.AnswerStore,
	sink session.ResultSink,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *PortalService {
	return &PortalService{
		sessionRepo:    sessionRepo,
		examService:    examService,
		settingService: settingService,
		manager:        manager,
		store:          store,
		sink:           sink,
		rdb:            rdb,
		cfg:            cfg,
		log:            log.With().Str("component", "portal_service").Logger(),
	}
}

// Status answers the pre-exam session status query: not yet started
// (waiting-room step), started (resume), or already finished (short-circuit
// to the result view).
func (s *PortalService) Status(ctx context.Context, participantID int) (model.AttemptStatus, *model.ExamSession, error) {
	sess, err := s.sessionRepo.GetByParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AttemptNotStarted, nil, nil
		}
		return "", nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return model.AttemptFinished, sess, nil
	}
	return model.AttemptStarted, sess, nil
}

// Start marks the attempt as started and spins up the controller. Idempotent:
// rejoining an IN_PROGRESS attempt reuses the original server-issued start
// timestamp, so the countdown keeps running across reloads.
func (s *PortalService) Start(ctx context.Context, participantID int) (*session.Controller, error) {
	existing, err := s.sessionRepo.GetByParticipant(ctx, participantID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	if existing != nil {
		if existing.Status == model.SessionStatusCompleted {
			return nil, ErrAttemptFinished
		}
		// Rejoin: the cached anchor wins so the countdown stays pinned to
		// the exact instant handed to the first controller.
		startedAt := existing.StartedAt
		if anchor := s.cachedStartTime(ctx, participantID); anchor != nil {
			startedAt = *anchor
		} else {
			s.cacheStartTime(ctx, participantID, startedAt)
		}
		return s.attach(ctx, participantID, startedAt)
	}

	sess := &model.ExamSession{ParticipantID: participantID}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start: the row already exists, fetch it.
			existing, fetchErr := s.sessionRepo.GetByParticipant(ctx, participantID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			sess = existing
		} else {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	s.cacheStartTime(ctx, participantID, sess.StartedAt)

	return s.attach(ctx, participantID, sess.StartedAt)
}

// Controller returns the live controller for a participant, re-attaching one
// after a reload or server restart when the attempt is still IN_PROGRESS.
func (s *PortalService) Controller(ctx context.Context, participantID int) (*session.Controller, error) {
	if ctrl := s.manager.Get(participantID); ctrl != nil {
		return ctrl, nil
	}

	sess, err := s.sessionRepo.GetByParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotStarted
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, ErrAttemptFinished
	}

	startedAt := sess.StartedAt
	if anchor := s.cachedStartTime(ctx, participantID); anchor != nil {
		startedAt = *anchor
	}
	return s.attach(ctx, participantID, startedAt)
}

// formatStartAnchor and parseStartAnchor define the Redis representation of
// the start-time anchor. Nanosecond precision so a re-attached controller is
// pinned to the exact instant the first one was.
func formatStartAnchor(startedAt time.Time) string {
	return startedAt.UTC().Format(time.RFC3339Nano)
}

func parseStartAnchor(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

// cacheStartTime stores the start-time anchor in Redis so re-attaches read
// it without a round trip to the session row.
func (s *PortalService) cacheStartTime(ctx context.Context, participantID int, startedAt time.Time) {
	key := config.CacheKey.ParticipantSessionStartKey(participantID)
	if err := s.rdb.Set(ctx, key, formatStartAnchor(startedAt), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache start time")
	}
}

// cachedStartTime reads the start-time anchor. A missing or unreadable
// anchor returns nil; callers fall back to the session row.
func (s *PortalService) cachedStartTime(ctx context.Context, participantID int) *time.Time {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ParticipantSessionStartKey(participantID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("failed to read cached start time")
		}
		return nil
	}
	anchor, err := parseStartAnchor(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("raw", raw).Msg("malformed start-time anchor")
		return nil
	}
	return &anchor
}

// attach builds a controller anchored at startedAt and registers it. A
// previously cached question order wins over a fresh shuffle so the
// permutation stays fixed for the whole attempt.
func (s *PortalService) attach(ctx context.Context, participantID int, startedAt time.Time) (*session.Controller, error) {
	settings, err := s.settingService.LoadExamSettings(ctx)
	if err != nil {
		// Defaults already applied; an unreadable settings table is not fatal.
		s.log.Warn().Err(err).Msg("using default exam settings")
	}

	questions, err := s.examService.Questions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	restoredOrder, err := s.loadQuestionOrder(ctx, participantID)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load cached question order")
	}

	ctrl, err := session.NewController(ctx, participantID, questions, settings, startedAt, session.Options{
		Config: session.Config{
			TabSwitchGrace:          s.cfg.TabSwitchGrace,
			FullscreenStartGrace:    s.cfg.FullscreenStartGrace,
			FullscreenMaxViolations: s.cfg.FullscreenMaxViolations,
		},
		Store:         s.store,
		Sink:          s.sink,
		Log:           s.log,
		RestoredOrder: restoredOrder,
		Notify: func(n session.Notification) {
			s.manager.Dispatch(participantID, n)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}

	if settings.ShuffleQuestions && restoredOrder == nil {
		s.saveQuestionOrder(ctx, participantID, ctrl.QuestionOrder())
	}

	s.manager.Attach(participantID, ctrl)
	return ctrl, nil
}

// Paper returns the participant-facing paper in the session's fixed order.
func (s *PortalService) Paper(ctx context.Context, participantID int) (*model.ExamPaper, error) {
	ctrl, err := s.Controller(ctx, participantID)
	if err != nil {
		return nil, err
	}

	paper, err := s.examService.GetPaper(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.QuestionForParticipant, len(paper.Questions))
	for _, q := range paper.Questions {
		byID[q.ID.String()] = q
	}

	ordered := make([]model.QuestionForParticipant, 0, len(paper.Questions))
	for _, id := range ctrl.QuestionOrder() {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	paper.Questions = ordered

	return paper, nil
}

// State returns the reload-resume snapshot: phase, server-anchored remaining
// time, restored answers, and violation count.
func (s *PortalService) State(ctx context.Context, participantID int) (*session.Snapshot, error) {
	ctrl, err := s.Controller(ctx, participantID)
	if err != nil {
		return nil, err
	}
	snap := ctrl.Snapshot(time.Now())
	return &snap, nil
}

func (s *PortalService) loadQuestionOrder(ctx context.Context, participantID int) ([]string, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ParticipantQuestionOrderKey(participantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var order []string
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PortalService) saveQuestionOrder(ctx context.Context, participantID int, order []string) {
	raw, _ := json.Marshal(order)
	if err := s.rdb.Set(ctx, config.CacheKey.ParticipantQuestionOrderKey(participantID), raw, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache question order")
	}
}
