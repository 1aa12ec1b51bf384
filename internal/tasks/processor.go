package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/jobs"
	"promptfinder/internal/metrics"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

type Renamer interface {
	RenamePost(ctx context.Context, postID int64) (map[string]any, error)
}

type VideoMetadata interface {
	GenerateVideoMetadata(ctx context.Context, postID int64) (map[string]any, error)
}

type BulkModerator interface {
	BulkModerate(ctx context.Context, status models.ModerationStatus) (moderation.BulkStats, error)
}

type SessionSweeper interface {
	SweepSessions(ctx context.Context) (int, error)
}

type TrashPurger interface {
	PurgeTrash(ctx context.Context) (int, error)
}

type StatusRecorder interface {
	Running(ctx context.Context, task jobs.Task) error
	Done(ctx context.Context, task jobs.Task, result map[string]any) error
	Failed(ctx context.Context, task jobs.Task, cause error) error
}

// Handlers are the services a task can call into.
type Handlers struct {
	Renamer       Renamer
	VideoMetadata VideoMetadata
	Moderator     BulkModerator
	Sessions      SessionSweeper
	Trash         TrashPurger
}

type Processor struct {
	handlers   Handlers
	status     StatusRecorder
	maxRuntime time.Duration
	logger     zerolog.Logger
}

func NewProcessor(handlers Handlers, status StatusRecorder, maxRuntime time.Duration, logger zerolog.Logger) *Processor {
	if maxRuntime <= 0 {
		maxRuntime = 10 * time.Minute
	}
	return &Processor{
		handlers:   handlers,
		status:     status,
		maxRuntime: maxRuntime,
		logger:     logger.With().Str("component", "tasks").Logger(),
	}
}

// Handle runs one stream message. Task failures are recorded on the job status and the
// message is acked; only an interrupted run is returned as an error so it is redelivered.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := jobs.Decode(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed task")
		return nil
	}

	log := p.logger.With().Str("job_id", task.ID).Str("type", task.Type).Int64("post_id", task.PostID).Logger()
	if err := p.status.Running(ctx, task); err != nil {
		log.Warn().Err(err).Msg("mark running failed")
	}

	runCtx, cancel := context.WithTimeout(ctx, p.maxRuntime)
	defer cancel()

	start := time.Now()
	result, err := p.run(runCtx, task)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		// shutdown; leave it pending for another worker
		metrics.ObserveJob(task.Type, "interrupted", elapsed)
		return ctx.Err()
	}

	statusCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer done()

	if err != nil {
		metrics.ObserveJob(task.Type, string(models.JobFailed), elapsed)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("task failed")
		if err := p.status.Failed(statusCtx, task, err); err != nil {
			log.Warn().Err(err).Msg("mark failed failed")
		}
		return nil
	}

	metrics.ObserveJob(task.Type, string(models.JobDone), elapsed)
	log.Info().Dur("elapsed", elapsed).Msg("task done")
	if err := p.status.Done(statusCtx, task, result); err != nil {
		log.Warn().Err(err).Msg("mark done failed")
	}
	return nil
}

func (p *Processor) run(ctx context.Context, task jobs.Task) (map[string]any, error) {
	switch task.Type {
	case jobs.TaskRename:
		return p.handlers.Renamer.RenamePost(ctx, task.PostID)
	case jobs.TaskVideoMetadata:
		return p.handlers.VideoMetadata.GenerateVideoMetadata(ctx, task.PostID)
	case jobs.TaskBulkModerate:
		status := models.ModerationPending
		if s := task.Data["status"]; s != "" {
			status = models.ModerationStatus(s)
		}
		stats, err := p.handlers.Moderator.BulkModerate(ctx, status)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"total_processed": stats.TotalProcessed,
			"approved":        stats.Approved,
			"rejected":        stats.Rejected,
			"flagged":         stats.Flagged,
			"errors":          stats.Errors,
		}, nil
	case jobs.TaskCleanupSessions:
		n, err := p.handlers.Sessions.SweepSessions(ctx)
		return map[string]any{"swept": n}, err
	case jobs.TaskPurgeTrash:
		n, err := p.handlers.Trash.PurgeTrash(ctx)
		return map[string]any{"purged": n}, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task.Type)
	}
}

var ErrUnknownTask = errors.New("unknown task type")
