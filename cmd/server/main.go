package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invigilo/invigilo-backend/internal/bus"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/handler"
	"github.com/invigilo/invigilo-backend/internal/logger"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/objectstore"
	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/router"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
	"github.com/invigilo/invigilo-backend/internal/worker"
	"github.com/rs/zerolog"
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
		Msg("Starting Invigilo Backend")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

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

	// ─── Connect to RabbitMQ ───────────────────────────────────────────
	mq, err := bus.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer mq.Close()

	// ─── Connect to Object Store ───────────────────────────────────────
	store, err := objectstore.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to object store")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	proctorRepo := repository.NewExamProctorRepository(pool)
	eventRepo := repository.NewProctoringEventRepository(pool)
	summaryRepo := repository.NewViolationSummaryRepository(pool)
	behaviorRepo := repository.NewBehaviorEventRepository(pool)

	// ─── Realtime Hub ──────────────────────────────────────────────────
	hub := realtime.NewHub(rdb, log)
	go hub.Run(ctx)

	// ─── Initialize Services ───────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo)
	authzService := service.NewAuthzService(proctorRepo)
	notifier := service.NewNotificationService(hub, log)
	inference := service.NewInferenceClient(cfg)
	userService := service.NewUserService(userRepo, authService, store, log)
	examService := service.NewExamService(examRepo, questionRepo, proctorRepo, userRepo, log)
	questionService := service.NewQuestionService(examRepo, questionRepo, rdb, log)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, examRepo, userRepo, log)
	sessionService := service.NewExamSessionService(
		pool, rdb, cfg,
		sessionRepo, enrollmentRepo, examRepo, questionRepo, answerRepo, summaryRepo, eventRepo,
		inference, notifier, log,
	)
	proctoringService := service.NewProctoringService(
		pool, rdb, mq, cfg,
		sessionRepo, eventRepo, summaryRepo, behaviorRepo,
		sessionService, notifier, log,
	)

	limiter := middleware.NewLimiter(rdb, log)

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, userService),
		User:       handler.NewUserHandler(userService, cfg),
		Exam:       handler.NewExamHandler(examService),
		Question:   handler.NewQuestionHandler(questionService, examService, sessionService, authzService),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService),
		Session:    handler.NewSessionHandler(sessionService, authzService),
		Proctoring: handler.NewProctoringHandler(proctoringService, sessionService, authzService),
		WS:         handler.NewWSHandler(hub, sessionService, proctoringService, authzService, limiter, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(rdb, mq, log),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultConsumer := worker.NewResultConsumer(mq, proctoringService, log)
	behaviorWorker := worker.NewBehaviorWorker(behaviorRepo, rdb, log)
	statusWorker := worker.NewExamStatusWorker(examRepo, sessionRepo, enrollmentRepo, sessionService, log)
	staleWorker := worker.NewStaleSessionWorker(sessionRepo, sessionService, cfg, log)
	expiryWorker := worker.NewContentExpiryWorker(store, eventRepo, cfg, log)

	go resultConsumer.Start(workerCtx)
	go behaviorWorker.Start(workerCtx)
	go statusWorker.Start(workerCtx)
	go staleWorker.Start(workerCtx)
	go expiryWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, limiter, handlers, pool, rdb, cfg)

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

	// 2. Stop background workers and wait for buffers to flush.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
