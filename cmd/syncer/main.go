package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"vidsync/internal/config"
	"vidsync/internal/domain"
	"vidsync/internal/feedserver"
	"vidsync/internal/publisher"
	"vidsync/internal/recordstore"
	"vidsync/internal/scheduler"
	"vidsync/internal/service"
	"vidsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	videoStore := postgres.NewVideoStore(db)
	channelStore := postgres.NewChannelStore(db)
	statusStore := postgres.NewStatusStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)

	// Initialize remote clients
	feedClient := feedserver.New(feedserver.Config{
		BaseURL: cfg.FeedServer.BaseURL,
		Timeout: cfg.FeedServer.Timeout,
	}, logger)

	recordClient := recordstore.New(recordstore.Config{
		BaseURL: cfg.RecordStore.BaseURL,
		Timeout: cfg.RecordStore.Timeout,
	}, logger)

	// Create the two sync engines
	feedSync := service.NewFeedSyncService(
		feedClient,
		videoStore,
		channelStore,
		syncStateStore,
		rabbitMQ,
		logger,
		cfg.FeedSync,
		cfg.UserID,
	)

	statusSync := service.NewStatusSyncService(
		recordClient,
		statusStore,
		syncStateStore,
		logger,
		cfg.StatusSync,
		cfg.UserID,
	)

	var cred *domain.Credential
	if cfg.AccessToken != "" {
		cred = &domain.Credential{AccessToken: cfg.AccessToken}
	}

	feedSched := scheduler.NewScheduler(domain.SyncDomainFeed,
		func(ctx context.Context) error {
			_, err := feedSync.SyncIfNeeded(ctx, cred)
			return err
		},
		cfg.FeedSync.Interval, 10*time.Minute, logger)

	statusSched := scheduler.NewScheduler(domain.SyncDomainStatus,
		func(ctx context.Context) error {
			_, err := statusSync.SyncIfNeeded(ctx)
			return err
		},
		cfg.StatusSync.Interval, 5*time.Minute, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting vidsync",
		"user_id", cfg.UserID,
		"feed_interval", cfg.FeedSync.Interval,
		"status_interval", cfg.StatusSync.Interval,
	)

	var wg sync.WaitGroup
	for _, sched := range []*scheduler.Scheduler{feedSched, statusSched} {
		sched := sched
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler error", "error", err)
			}
		}()
	}
	wg.Wait()
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
