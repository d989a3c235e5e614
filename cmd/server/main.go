package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/database"
	"github.com/ujicara/cbt-backend/internal/handler"
	"github.com/ujicara/cbt-backend/internal/logger"
	"github.com/ujicara/cbt-backend/internal/repository"
	"github.com/ujicara/cbt-backend/internal/router"
	"github.com/ujicara/cbt-backend/internal/service"
	"github.com/ujicara/cbt-backend/internal/session"
	"github.com/ujicara/cbt-backend/internal/validator"
	"github.com/ujicara/cbt-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Ujicara Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	participantRepo := repository.NewParticipantRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	answerStore := repository.NewRedisAnswerStore(rdb)
	resultSink := repository.NewQueueResultSink(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	examService := service.NewExamService(questionRepo, rdb, log)
	settingService := service.NewSettingService(settingRepo, log)

	manager := session.NewManager(session.DefaultTickInterval, log)

	portalService := service.NewPortalService(
		sessionRepo, examService, settingService,
		manager, answerStore, resultSink,
		rdb, cfg, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(authService, participantRepo),
		Portal: handler.NewPortalHandler(portalService, settingService),
		WS:     handler.NewWSHandler(rdb, portalService, manager, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	submissionWorker := worker.NewSubmissionWorker(pool, rdb, log)
	proctoringWorker := worker.NewProctoringWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go submissionWorker.Start(workerCtx)
	go proctoringWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load the exam payload into Redis BEFORE accepting traffic so the
	// first wave of participants never hits PostgreSQL for the paper.
	settings, err := settingService.LoadExamSettings(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Settings load failed, using defaults")
	}
	if err := examService.WarmCache(ctx, settings.ExamName); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop session tickers. Live sessions resume from Redis on restart.
	manager.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
