package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/product-sourcing/internal/api"
	"github.com/maltedev/product-sourcing/internal/app"
	"github.com/maltedev/product-sourcing/internal/browser"
	"github.com/maltedev/product-sourcing/internal/config"
	"github.com/maltedev/product-sourcing/internal/database"
	"github.com/maltedev/product-sourcing/internal/events"
	"github.com/maltedev/product-sourcing/internal/jobs"
	"github.com/maltedev/product-sourcing/internal/queue"
	"github.com/maltedev/product-sourcing/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := browser.New(app.BrowserOptions(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	listings, err := storage.NewListingStorage(cfg.Sourcing.ListingFile)
	if err != nil {
		logger.Error("failed to open listing storage", "error", err)
		os.Exit(1)
	}

	p := app.NewPipeline(cfg, b, logger)

	sinks := []jobs.Sink{
		app.RecordFileSink(cfg.Sourcing.OutputDir),
		app.ListingStatusSink(listings),
	}

	var outbox api.OutboxCounter
	if cfg.Database.Enabled() {
		db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN(), MaxConns: 10})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		outboxRepo := database.NewOutboxRepository(db, cfg.Relay.StreamName, cfg.Relay.MaxRetries)
		relay := database.NewRelay(redisClient, outboxRepo, logger, database.RelayConfig{
			PollInterval: cfg.Relay.PollInterval,
			BatchSize:    cfg.Relay.BatchSize,
			StreamMaxLen: cfg.Relay.StreamMaxLen,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
		outbox = relay

		publisher := events.NewPublisher(db, database.NewRecordRepository(db), outboxRepo, cfg.Relay.StreamName, logger)
		sinks = append(sinks, app.PublisherSink(publisher))
	} else {
		logger.Info("database not configured, records are written to files only")
	}

	q := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
	manager := jobs.NewManager(q, p, logger, sinks...)
	go manager.StartWorker(ctx)

	handlers := api.NewHandlers(manager, p, listings, outbox, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()
		_ = q.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
