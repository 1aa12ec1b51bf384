package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/config"
	"promptfinder/internal/jobs"
	"promptfinder/internal/media/imageproc"
	"promptfinder/internal/media/videoproc"
	"promptfinder/internal/metadata"
	"promptfinder/internal/moderation"
	"promptfinder/internal/moderation/lexical"
	"promptfinder/internal/moderation/textmod"
	"promptfinder/internal/moderation/vision"
	"promptfinder/internal/repository"
	"promptfinder/internal/storage"
)

// Services is the wired graph shared by the API and the worker.
type Services struct {
	Uploads    *UploadService
	Posts      *PostService
	Rename     *RenameService
	Moderation *moderation.Orchestrator
	Queue      *jobs.Queue
	Status     *jobs.StatusStore
	Store      *storage.ObjectStore
}

func NewServices(ctx context.Context, pool *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig, logger zerolog.Logger) (*Services, error) {
	store, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	posts := repository.NewPostRepository(pool)
	tags := repository.NewTagRepository(pool)
	words := repository.NewProfanityRepository(pool)

	client := ai.NewClient(cfg.OpenAI, logger)
	videos := videoproc.New(cfg.Transcoder)

	filter := lexical.NewFilter(words, cache, cfg.Moderation.WordListTTL, logger)
	visionMod := vision.New(client, videos, client.VisionModel(), logger)
	orchestrator := moderation.NewOrchestrator(
		filter,
		textmod.New(client, logger),
		visionMod,
		posts,
		cfg.Moderation,
		logger,
	)

	status := jobs.NewStatusStore(cache, cfg.Jobs.StatusTTL)
	queue := jobs.NewQueue(cache, cfg.Jobs.Stream, status)

	uploads := NewUploadService(UploadDeps{
		Store:     store,
		Posts:     posts,
		Sessions:  NewSessionStore(cache),
		Moderator: orchestrator,
		Vision:    visionMod,
		Metadata:  metadata.NewGenerator(client, tags, cfg.OpenAI, logger),
		Images:    imageproc.New(),
		Videos:    videos,
		Jobs:      queue,
		Tags:      tags,
	}, cfg.Upload, logger)

	return &Services{
		Uploads:    uploads,
		Posts:      NewPostService(posts, store, tags, orchestrator, cfg.Jobs.TrashGrace, logger),
		Rename:     NewRenameService(posts, store, logger),
		Moderation: orchestrator,
		Queue:      queue,
		Status:     status,
		Store:      store,
	}, nil
}
