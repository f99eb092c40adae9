package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/readalong-api/internal/config"
	"github.com/noah-isme/readalong-api/internal/database"
	"github.com/noah-isme/readalong-api/internal/handler"
	"github.com/noah-isme/readalong-api/internal/middleware"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/internal/router"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/pkg/ai"
	cloud "github.com/noah-isme/readalong-api/pkg/cloudinary"
	"github.com/noah-isme/readalong-api/pkg/mailer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	benchmarkRepo := repository.NewBenchmarkRepository(db)
	if err := service.EnsureBenchmarks(ctx, benchmarkRepo, logger); err != nil {
		return fmt.Errorf("seed benchmarks: %w", err)
	}
	table, err := service.LoadBenchmarkTable(ctx, benchmarkRepo)
	if err != nil {
		return err
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn().Msg("redis not configured, content locks and progress fan-out are local to this node")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var recordings service.RecordingStore
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Configured() {
		uploader, err := cloud.New(cloudCfg, logger)
		if err != nil {
			return err
		}
		recordings = uploader
	}

	mail, err := mailer.New(ctx, mailer.Config{
		Region:     cfg.SESRegion,
		FromEmail:  cfg.SESFromEmail,
		FromName:   cfg.SESFromName,
		AppBaseURL: cfg.AppBaseURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("configure mailer: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	parentRepo := repository.NewParentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	planRepo := repository.NewPlanRepository(db)
	dayRepo := repository.NewDayRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	contentRepo := repository.NewActivityContentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)

	events := service.NewProgressEventBus(redisClient, cfg.EventsChannel, natsConn, logger)
	students := service.NewStudentService(parentRepo, studentRepo, validate, logger)
	cache := service.NewContentCacheService(contentRepo, generator, redisClient, service.ContentCacheConfig{
		TTL:             cfg.ContentCacheTTL,
		LockTTL:         cfg.ContentLockTTL,
		WaitTimeout:     cfg.ContentWaitTimeout,
		FallbackEnabled: cfg.ContentFallbackEnabled,
	}, logger)
	progression := service.NewProgressionService(dayRepo, planRepo, progressRepo, logger)
	ledger := service.NewLedgerService(db, planRepo, studentRepo, progressRepo, progression, cache, events, validate, logger)
	plans := service.NewPlanService(planRepo, assessmentRepo, students, progression, ledger, cache, generator, validate, logger)
	assessments := service.NewAssessmentService(assessmentRepo, students, service.AssessmentDeps{
		Generator:    generator,
		Recordings:   recordings,
		Events:       events,
		MaxUploadMB:  cfg.UploadMaxSizeMB,
		ScoringTable: table,
		MinElapsed:   cfg.ScoringMinElapsedSeconds,
	}, validate, logger)
	benchmarks := service.NewBenchmarkService(table)

	if cfg.ContentPrimeOnUnlock {
		events.Handle(service.NewCachePrimer(planRepo, studentRepo, cache, logger).Handle)
	}
	events.Handle(service.NewParentNotifier(parentRepo, studentRepo, planRepo, assessmentRepo, mail, logger).Handle)
	events.Start(ctx)

	generationLimit := middleware.RateLimit("generate", cfg.GenerationRateLimit, time.Minute)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:    handler.NewStudentHandler(students, plans, assessments, logger),
		AssessmentHandler: handler.NewAssessmentHandler(assessments, generationLimit, logger),
		PlanHandler:       handler.NewPlanHandler(plans, ledger, events, generationLimit, logger),
		ActivityHandler:   handler.NewActivityHandler(ledger, plans, logger),
		BenchmarkHandler:  handler.NewBenchmarkHandler(benchmarks),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		ParentSession:     handler.ParentSession(students, logger),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("http server listening")
		listenErr <- app.Listen(cfg.HTTPAddress())
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	events.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// newGenerator builds the configured provider. Without one every generation fails
// and activities are served from fallback templates where they exist.
func newGenerator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Generator, error) {
	if cfg.GeneratorProvider == "mock" {
		logger.Warn().Msg("content generator disabled, using the mock provider")
		return ai.NewMockGenerator(), nil
	}
	generator, err := ai.New(ctx, ai.Config{
		Provider:          cfg.GeneratorProvider,
		APIKey:            cfg.ProviderAPIKey(),
		Model:             cfg.GeneratorModel,
		BaseURL:           cfg.GeneratorBaseURL,
		RequestsPerMinute: cfg.GeneratorRequestsPerMin,
		Timeout:           cfg.GeneratorTimeout,
		Retry: ai.RetryConfig{
			MaxAttempts: cfg.GeneratorMaxAttempts,
			InitialWait: cfg.GeneratorInitialBackoff,
			MaxWait:     cfg.GeneratorMaxBackoff,
			Multiplier:  2,
		},
		Logger: logger,
	})
	if errors.Is(err, ai.ErrNotConfigured) {
		logger.Warn().Msg("no content generator configured")
		return ai.NewMockGenerator(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("configure generator: %w", err)
	}
	return generator, nil
}
