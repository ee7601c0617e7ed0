package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"log/slog"

	"github.com/topicwatch/topicwatch/internal/api"
	"github.com/topicwatch/topicwatch/internal/config"
	"github.com/topicwatch/topicwatch/internal/consolidation"
	"github.com/topicwatch/topicwatch/internal/database"
	"github.com/topicwatch/topicwatch/internal/discovery"
	"github.com/topicwatch/topicwatch/internal/fetcher"
	"github.com/topicwatch/topicwatch/internal/llm"
	"github.com/topicwatch/topicwatch/internal/logging"
	"github.com/topicwatch/topicwatch/internal/metrics"
	"github.com/topicwatch/topicwatch/internal/notify"
	"github.com/topicwatch/topicwatch/internal/pipeline"
	"github.com/topicwatch/topicwatch/internal/scheduler"
	"github.com/topicwatch/topicwatch/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting topicwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	notificationRepo := database.NewNotificationRepository(db)
	topicRepo := database.NewTopicRepository(db)
	sourceRepo := database.NewSourceRepository(db)
	eventRepo := database.NewEventRepository(db)
	extractionRepo := database.NewExtractedEventRepository(db)
	comparisonRepo := database.NewComparisonRepository(db)
	websourceRepo := database.NewWebSourceRepository(db)

	// LLM client shared by discovery, extraction and consolidation
	llmClient := llm.NewOpenAIClient(cfg.OpenAI, logger)

	// Crawl stack
	limiter := fetcher.NewDomainLimiter(cfg.Discovery.DomainConcurrency, cfg.Discovery.FetchPacing)
	contentFetcher := fetcher.New(cfg.Discovery.FetchTimeout, limiter, logger)
	discoverer := discovery.NewEngine(contentFetcher, llmClient, websourceRepo, cfg.Discovery, logger)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Merge engine
	consolidator := consolidation.New(eventRepo, extractionRepo, comparisonRepo, llmClient, cfg.Consolidation, collector, logger)

	notifier := notify.New(notificationRepo, logger)

	controller := pipeline.NewController(
		sourceRepo,
		topicRepo,
		discoverer,
		llmClient,
		extractionRepo,
		websourceRepo,
		consolidator,
		notifier,
		collector,
		logger,
	)

	sched := scheduler.New(controller, sourceRepo, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	api.SetupRoutes(mux,
		userRepo,
		topicRepo,
		sourceRepo,
		eventRepo,
		extractionRepo,
		notificationRepo,
		sched,
		cfg.Auth,
		logger,
	)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	sched.Stop()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shut down cleanly", "error", err)
		os.Exit(1)
	}

	logger.Info("topicwatch stopped")
}
