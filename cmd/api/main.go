package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/cache"
	"promptfinder/internal/config"
	"promptfinder/internal/database"
	"promptfinder/internal/handlers"
	"promptfinder/internal/jobs"
	"promptfinder/internal/log"
	"promptfinder/internal/server"
	"promptfinder/internal/service"
	"promptfinder/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	storage.SetMaxAttempts(cfg.Storage.MaxAttempts)

	ctx := context.Background()

	if cfg.Postgres.AutoMigrate {
		if err := database.RunMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	services, err := service.NewServices(ctx, dbPool, redisClient, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	handlerSet := handlers.NewHandlerSet(logger, services.Uploads, services.Posts, handlers.Options{
		Environment:   cfg.Environment,
		JWTSecret:     cfg.Security.JWTSecret,
		StaffRoles:    cfg.Security.StaffRoles,
		RatePerMinute: cfg.Upload.RatePerMinute,
		Database:      dbPool.Ping,
		Cache:         func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(services.Queue, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("scheduler jobs still running at shutdown")
		}
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
