package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/readspace/ielts-backend/internal/config"
	"github.com/readspace/ielts-backend/internal/database"
	"github.com/readspace/ielts-backend/internal/handler"
	"github.com/readspace/ielts-backend/internal/logger"
	"github.com/readspace/ielts-backend/internal/repository"
	"github.com/readspace/ielts-backend/internal/router"
	"github.com/readspace/ielts-backend/internal/scoring"
	"github.com/readspace/ielts-backend/internal/service"
	"github.com/readspace/ielts-backend/internal/validator"
	ws "github.com/readspace/ielts-backend/internal/websocket"
	"github.com/readspace/ielts-backend/internal/worker"
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
		Msg("Starting ReadSpace Backend")

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

	// ─── Band Table ────────────────────────────────────────────────────
	bandTable := scoring.Default()
	if cfg.BandTable != "" {
		bandTable, err = scoring.Parse(cfg.BandTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid BAND_TABLE configuration")
		}
		log.Info().Int("steps", len(bandTable)).Msg("Using configured band table")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Live Delivery ──────────────────────────────────────
	hub := ws.NewHub(log)
	broadcaster := ws.NewBroadcaster(hub, userRepo, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo)
	sessionService := service.NewSessionService(sessionRepo, attemptRepo, classRepo, testRepo, broadcaster, rdb, log)
	violationLimiter := service.NewViolationLimiter()
	attemptService := service.NewAttemptService(
		attemptRepo, sessionRepo, testRepo, userRepo,
		violationLimiter, broadcaster, rdb,
		bandTable, cfg.MaxHighlightsPerAttempt, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, userRepo),
		Session: handler.NewSessionHandler(sessionService),
		Attempt: handler.NewAttemptHandler(attemptService),
		WS:      handler.NewWSHandler(hub, sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	auditWorker := worker.NewViolationAuditWorker(pool, rdb, log)
	timerWorker := worker.NewSessionTimerWorker(
		sessionRepo, attemptRepo, testRepo,
		sessionService, attemptService,
		cfg.SessionSweepInterval, log)

	go auditWorker.Start(workerCtx)
	go timerWorker.Start(workerCtx)
	go violationLimiter.Start(workerCtx)

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
