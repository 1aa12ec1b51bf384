package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/jobs"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

type fakeServices struct {
	renamed    []int64
	renameErr  error
	block      bool
	bulkStatus models.ModerationStatus
}

func (f *fakeServices) RenamePost(ctx context.Context, postID int64) (map[string]any, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.renamed = append(f.renamed, postID)
	return map[string]any{"renamed": 5}, f.renameErr
}

func (f *fakeServices) GenerateVideoMetadata(ctx context.Context, postID int64) (map[string]any, error) {
	return map[string]any{"post_id": postID}, nil
}

func (f *fakeServices) BulkModerate(ctx context.Context, status models.ModerationStatus) (moderation.BulkStats, error) {
	f.bulkStatus = status
	return moderation.BulkStats{TotalProcessed: 3, Approved: 2, Flagged: 1}, nil
}

func (f *fakeServices) SweepSessions(ctx context.Context) (int, error) { return 2, nil }

func (f *fakeServices) PurgeTrash(ctx context.Context) (int, error) { return 0, nil }

func newTestProcessor(t *testing.T, maxRuntime time.Duration) (*Processor, *fakeServices, *jobs.StatusStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	fake := &fakeServices{}
	status := jobs.NewStatusStore(client, time.Hour)
	p := NewProcessor(Handlers{
		Renamer:       fake,
		VideoMetadata: fake,
		Moderator:     fake,
		Sessions:      fake,
		Trash:         fake,
	}, status, maxRuntime, zerolog.Nop())
	return p, fake, status
}

func message(t *testing.T, task jobs.Task) redis.XMessage {
	t.Helper()
	raw, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Failed to encode task: %v", err)
	}
	return redis.XMessage{ID: "1-0", Values: map[string]any{"payload": string(raw)}}
}

func TestHandleRecordsDone(t *testing.T) {
	p, fake, status := newTestProcessor(t, time.Minute)
	ctx := context.Background()

	if err := p.Handle(ctx, message(t, jobs.Task{ID: "j1", Type: jobs.TaskRename, PostID: 42})); err != nil {
		t.Fatalf("Failed to handle: %v", err)
	}
	if len(fake.renamed) != 1 || fake.renamed[0] != 42 {
		t.Errorf("Expected rename of post 42, got %v", fake.renamed)
	}
	rec, err := status.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Failed to read status: %v", err)
	}
	if rec.Status != models.JobDone {
		t.Errorf("Expected done, got %s", rec.Status)
	}
	if rec.Result["renamed"] != float64(5) {
		t.Errorf("Expected result carried, got %v", rec.Result)
	}
}

func TestHandleRecordsFailure(t *testing.T) {
	p, fake, status := newTestProcessor(t, time.Minute)
	fake.renameErr = errors.New("copy failed")
	ctx := context.Background()

	if err := p.Handle(ctx, message(t, jobs.Task{ID: "j2", Type: jobs.TaskRename, PostID: 1})); err != nil {
		t.Fatalf("Expected failure acked, got %v", err)
	}
	rec, _ := status.Get(ctx, "j2")
	if rec.Status != models.JobFailed || rec.Error != "copy failed" {
		t.Errorf("Expected failed with cause, got %+v", rec)
	}
}

func TestHandleBulkModerateStatus(t *testing.T) {
	p, fake, _ := newTestProcessor(t, time.Minute)

	task := jobs.Task{ID: "j3", Type: jobs.TaskBulkModerate, Data: map[string]string{"status": "flagged"}}
	if err := p.Handle(context.Background(), message(t, task)); err != nil {
		t.Fatalf("Failed to handle: %v", err)
	}
	if fake.bulkStatus != models.ModerationFlagged {
		t.Errorf("Expected flagged run, got %s", fake.bulkStatus)
	}
}

func TestHandleUnknownAndMalformed(t *testing.T) {
	p, _, status := newTestProcessor(t, time.Minute)
	ctx := context.Background()

	if err := p.Handle(ctx, redis.XMessage{ID: "1-0", Values: map[string]any{"payload": "{"}}); err != nil {
		t.Errorf("Expected malformed message dropped, got %v", err)
	}

	if err := p.Handle(ctx, message(t, jobs.Task{ID: "j4", Type: "resize"})); err != nil {
		t.Fatalf("Expected unknown task acked, got %v", err)
	}
	rec, _ := status.Get(ctx, "j4")
	if rec.Status != models.JobFailed {
		t.Errorf("Expected unknown task failed, got %s", rec.Status)
	}
}

func TestHandleTimeout(t *testing.T) {
	p, fake, status := newTestProcessor(t, 20*time.Millisecond)
	fake.block = true
	ctx := context.Background()

	if err := p.Handle(ctx, message(t, jobs.Task{ID: "j5", Type: jobs.TaskRename, PostID: 1})); err != nil {
		t.Fatalf("Expected timed out task acked, got %v", err)
	}
	rec, _ := status.Get(ctx, "j5")
	if rec.Status != models.JobFailed {
		t.Errorf("Expected timeout recorded as failure, got %s", rec.Status)
	}
}

func TestHandleShutdownLeavesPending(t *testing.T) {
	p, fake, _ := newTestProcessor(t, time.Minute)
	fake.block = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Handle(ctx, message(t, jobs.Task{ID: "j6", Type: jobs.TaskRename, PostID: 1})); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context error for redelivery, got %v", err)
	}
}
