package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"promptfinder/internal/models"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) (string, error)
}

type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	log   zerolog.Logger
}

func NewScheduler(queue Enqueuer, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: queue,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("0 0 */1 * * *", s.enqueueBulkModeration); err != nil { // hourly
		return err
	}
	if _, err := s.cron.AddFunc("0 */1 * * * *", s.enqueueSessionSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 30 3 * * *", s.enqueueTrashPurge); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron. The returned context is done once running enqueues finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) enqueueBulkModeration() {
	s.enqueue(Task{Type: TaskBulkModerate, Data: map[string]string{"status": string(models.ModerationPending)}})
}

func (s *Scheduler) enqueueSessionSweep() {
	s.enqueue(Task{Type: TaskCleanupSessions})
}

func (s *Scheduler) enqueueTrashPurge() {
	s.enqueue(Task{Type: TaskPurgeTrash})
}

func (s *Scheduler) enqueue(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.queue.Enqueue(ctx, task); err != nil {
		s.log.Error().Err(err).Str("type", task.Type).Msg("enqueue scheduled task failed")
	}
}
