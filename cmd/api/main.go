package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/config"
	"github.com/noah-isme/gema-submission-gateway/internal/database"
	"github.com/noah-isme/gema-submission-gateway/internal/handler"
	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/repository"
	"github.com/noah-isme/gema-submission-gateway/internal/router"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
	"github.com/noah-isme/gema-submission-gateway/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	backend, err := lms.New(lms.Config{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create lms client: %v", err)
	}
	uploader := storage.New(storage.Config{
		Timeout: cfg.StorageTimeout,
		Logger:  logger,
	})

	validate := validator.New(validator.WithRequiredStructEnabled())

	eventRepo := repository.NewLifecycleEventRepository(db)
	sessionStore := repository.NewRedisSessionStore(redisClient, "gema:gateway")

	lifecycleService := service.NewLifecycleService(eventRepo, natsConn, cfg.EventSubject, validate, logger)
	catalog := service.NewAssignmentCatalog(backend, logger)
	reconciler := service.NewReconciler(backend, utils.BackoffDelays(cfg.RefreshRetries, cfg.RefreshBaseDelay, cfg.RefreshBackoffFactor), lifecycleService, logger)

	assignmentService := service.NewAssignmentService(catalog, backend, reconciler, logger)
	attemptService := service.NewAttemptService(catalog, backend, lifecycleService, logger)
	submissionService := service.NewSubmissionService(catalog, backend, uploader, sessionStore, reconciler, lifecycleService, validate, service.SubmissionConfig{
		MaxUploadBytes: cfg.UploadMaxBytes(),
		SessionTTL:     cfg.UploadSessionTTL,
	}, logger)
	quizService := service.NewQuizService(catalog, backend, sessionStore, reconciler, lifecycleService, service.QuizConfig{
		TickInterval: cfg.TimerTickInterval,
		DraftTTL:     cfg.QuizDraftTTL,
		SubmitTTL:    cfg.QuizSubmitMemoTTL,
		ClaimTTL:     cfg.QuizClaimTTL,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes()) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, validate, logger),
		AttemptHandler:    handler.NewAttemptHandler(attemptService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, lifecycleService, validate, logger).WithUploadTimeout(cfg.UploadProxyTimeout),
		QuizHandler:       handler.NewQuizHandler(quizService, validate, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
		UploadLimiter: middleware.RateLimit("uploads", cfg.UploadRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
