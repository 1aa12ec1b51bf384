package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"promptfinder/internal/ids"
	"promptfinder/internal/models"
)

const (
	TaskRename          = "rename"
	TaskVideoMetadata   = "video_metadata"
	TaskBulkModerate    = "bulk_moderate"
	TaskCleanupSessions = "cleanup_sessions"
	TaskPurgeTrash      = "purge_trash"
)

// Task is one unit of background work.
type Task struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	PostID int64             `json:"post_id,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// StatusStore keeps job:{id} records that clients poll.
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewStatusStore(client *redis.Client, ttl time.Duration) *StatusStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &StatusStore{client: client, ttl: ttl, now: time.Now}
}

func statusKey(id string) string {
	return "job:" + id
}

func (s *StatusStore) Get(ctx context.Context, id string) (models.JobRecord, error) {
	raw, err := s.client.Get(ctx, statusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.JobRecord{}, ErrJobNotFound
		}
		return models.JobRecord{}, fmt.Errorf("get job status: %w", err)
	}
	var rec models.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.JobRecord{}, fmt.Errorf("decode job status: %w", err)
	}
	return rec, nil
}

// Set writes the record and restarts its TTL.
func (s *StatusStore) Set(ctx context.Context, rec models.JobRecord) error {
	now := s.now().UTC()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, statusKey(rec.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func (s *StatusStore) Running(ctx context.Context, task Task) error {
	return s.Set(ctx, models.JobRecord{ID: task.ID, Type: task.Type, Status: models.JobRunning})
}

func (s *StatusStore) Done(ctx context.Context, task Task, result map[string]any) error {
	return s.Set(ctx, models.JobRecord{ID: task.ID, Type: task.Type, Status: models.JobDone, Result: result})
}

func (s *StatusStore) Failed(ctx context.Context, task Task, cause error) error {
	return s.Set(ctx, models.JobRecord{ID: task.ID, Type: task.Type, Status: models.JobFailed, Error: cause.Error()})
}

// Queue publishes tasks to the worker stream.
type Queue struct {
	client *redis.Client
	stream string
	status *StatusStore
}

func NewQueue(client *redis.Client, stream string, status *StatusStore) *Queue {
	if stream == "" {
		stream = "promptfinder:jobs"
	}
	return &Queue{client: client, stream: stream, status: status}
}

// Enqueue records the job as queued and adds it to the stream. The returned id can be
// polled through the status store.
func (q *Queue) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = ids.New()
	}
	if err := q.status.Set(ctx, models.JobRecord{ID: task.ID, Type: task.Type, Status: models.JobQueued}); err != nil {
		return "", err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"id":      task.ID,
			"type":    task.Type,
			"post_id": strconv.FormatInt(task.PostID, 10),
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return task.ID, nil
}

func (q *Queue) Status(ctx context.Context, id string) (models.JobRecord, error) {
	if !ids.Valid(id) {
		return models.JobRecord{}, ErrJobNotFound
	}
	return q.status.Get(ctx, id)
}

// Decode rebuilds a task from a stream message.
func Decode(msg redis.XMessage) (Task, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return Task{}, fmt.Errorf("message %s: missing payload", msg.ID)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return task, nil
}

var ErrJobNotFound = errors.New("job not found")
