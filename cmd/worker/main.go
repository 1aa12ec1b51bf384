package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"promptfinder/internal/cache"
	"promptfinder/internal/config"
	"promptfinder/internal/database"
	"promptfinder/internal/log"
	"promptfinder/internal/queue"
	"promptfinder/internal/service"
	"promptfinder/internal/storage"
	"promptfinder/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	storage.SetMaxAttempts(cfg.Storage.MaxAttempts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	services, err := service.NewServices(ctx, dbPool, client, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	processor := tasks.NewProcessor(tasks.Handlers{
		Renamer:       services.Rename,
		VideoMetadata: services.Uploads,
		Moderator:     services.Moderation,
		Sessions:      services.Uploads,
		Trash:         services.Posts,
	}, services.Status, cfg.Jobs.MaxRuntime, logger)

	consumer := queue.NewConsumer(
		client,
		cfg.Jobs.Stream,
		cfg.Jobs.Group,
		cfg.Jobs.Consumer,
		cfg.Jobs.ClaimInterval,
		cfg.Jobs.Concurrency,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("tasks still running at shutdown")
	}
}
