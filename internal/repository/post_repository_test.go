package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"promptfinder/internal/database"
	"promptfinder/internal/models"
)

// openTestPool connects to PROMPTFINDER_TEST_DSN, migrates it and empties the tables.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PROMPTFINDER_TEST_DSN")
	if dsn == "" {
		t.Skip("PROMPTFINDER_TEST_DSN not set")
	}
	if err := database.RunMigrations(dsn, "../../migrations", zerolog.Nop()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(context.Background(), `TRUNCATE posts, moderation_logs, content_flags, tags, profanity_words RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	return pool
}

func draftPost(slug string) models.Post {
	return models.Post{
		Slug:           slug,
		ProcessingUUID: uuid.New(),
		AuthorID:       "user-1",
		Title:          "Sunset",
		Content:        "golden sunset over the sea",
		AIGenerator:    "Midjourney",
		Tags:           []string{"Sunset", "sunset", "nature"},
		Image: &models.ImageMedia{
			URL:       "https://cdn/a.jpg",
			ThumbURL:  "https://cdn/t.jpg",
			MediumURL: "https://cdn/m.jpg",
			LargeURL:  "https://cdn/l.jpg",
			AltURL:    "https://cdn/a.webp",
			Width:     800,
			Height:    600,
		},
	}
}

func TestCreateSuffixesTakenSlug(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	ctx := context.Background()

	first, err := repo.Create(ctx, draftPost("sunset"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	second, err := repo.Create(ctx, draftPost("sunset"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if first.Slug != "sunset" || second.Slug != "sunset-2" {
		t.Errorf("Expected sunset and sunset-2, got %s and %s", first.Slug, second.Slug)
	}
	if first.Status != models.PostStatusDraft || first.ModerationStatus != models.ModerationPending {
		t.Errorf("Expected draft/pending, got %s/%s", first.Status, first.ModerationStatus)
	}
	if len(first.Tags) != 2 {
		t.Errorf("Expected deduplicated tags, got %v", first.Tags)
	}
	if first.Image == nil || !first.MediaComplete() {
		t.Errorf("Expected complete image media, got %+v", first.Image)
	}
}

func TestCreateRejectsTooManyTags(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	post := draftPost("tags")
	post.Tags = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	if _, err := repo.Create(context.Background(), post); !errors.Is(err, ErrTooManyTags) {
		t.Errorf("Expected ErrTooManyTags, got %v", err)
	}
}

func TestCommitModerationPublishes(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	ctx := context.Background()
	post, err := repo.Create(ctx, draftPost("moderated"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	logs := []models.ModerationLog{
		{Service: models.ServiceLexical, Status: models.ModerationApproved},
		{
			Service:    models.ServiceVision,
			Status:     models.ModerationFlagged,
			Severity:   models.SeverityHigh,
			Categories: []string{"nudity"},
			Flags:      []models.ContentFlag{{Category: "nudity", Confidence: 0.85, Severity: models.SeverityHigh}},
		},
	}
	updated, err := repo.CommitModeration(ctx, post.ID, logs, models.ModerationUpdate{
		Status:         models.ModerationFlagged,
		RequiresReview: true,
		CompletedAt:    time.Now(),
		PostStatus:     models.PostStatusDraft,
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if updated.ModerationStatus != models.ModerationFlagged || !updated.RequiresManualReview || updated.ModerationCompletedAt == nil {
		t.Errorf("Unexpected post after commit %+v", updated)
	}

	stored, err := repo.LogsForPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("Failed to list logs: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 logs, got %d", len(stored))
	}
	var flags int
	for _, l := range stored {
		flags += len(l.Flags)
	}
	if flags != 1 {
		t.Errorf("Expected 1 flag, got %d", flags)
	}
}

func TestCommitModerationRejectsPublishingUnmoderated(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	ctx := context.Background()
	post, err := repo.Create(ctx, draftPost("bad-publish"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	_, err = repo.CommitModeration(ctx, post.ID,
		[]models.ModerationLog{{Service: models.ServiceLexical, Status: models.ModerationRejected}},
		models.ModerationUpdate{Status: models.ModerationRejected, CompletedAt: time.Now(), PostStatus: models.PostStatusPublished},
	)
	if err == nil {
		t.Fatal("Expected constraint violation")
	}
	logs, _ := repo.LogsForPost(ctx, post.ID)
	if len(logs) != 0 {
		t.Errorf("Expected no logs after rollback, got %d", len(logs))
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	ctx := context.Background()
	post, err := repo.Create(ctx, draftPost("trash"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if err := repo.SoftDelete(ctx, post.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := repo.SoftDelete(ctx, post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Expected ErrPostNotFound on second delete, got %v", err)
	}

	// slug freed while in trash
	if _, err := repo.Create(ctx, draftPost("trash")); err != nil {
		t.Fatalf("Failed to reuse slug: %v", err)
	}

	restored, err := repo.Restore(ctx, post.ID)
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if restored.DeletedAt != nil || restored.Slug != "trash-2" {
		t.Errorf("Expected live post with suffixed slug, got %s deleted=%v", restored.Slug, restored.DeletedAt)
	}
}

func TestUpdateMediaURLs(t *testing.T) {
	repo := NewPostRepository(openTestPool(t))
	ctx := context.Background()
	post, err := repo.Create(ctx, draftPost("rename"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	updated, err := repo.UpdateMediaURLs(ctx, post.ID, map[string]string{
		models.VariantOriginal: "https://cdn/sunset.jpg",
		models.VariantThumb:    "https://cdn/sunset-thumb.jpg",
	})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if updated.Image.URL != "https://cdn/sunset.jpg" || updated.Image.MediumURL != "https://cdn/m.jpg" {
		t.Errorf("Unexpected media %+v", updated.Image)
	}
}

func TestProfanityAndTags(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	words := NewProfanityRepository(pool)
	if err := words.Upsert(ctx, " Darn ", models.SeverityHigh); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := words.Upsert(ctx, "heck", models.SeverityLow); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := words.Deactivate(ctx, "heck"); err != nil {
		t.Fatalf("Failed to deactivate: %v", err)
	}
	active, err := words.ActiveWords(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(active) != 1 || active[0].Word != "darn" || active[0].Severity != models.SeverityHigh {
		t.Errorf("Unexpected active words %+v", active)
	}

	tags := NewTagRepository(pool)
	if err := tags.Ensure(ctx, "Sunset", "nature", "sunset", ""); err != nil {
		t.Fatalf("Failed to ensure tags: %v", err)
	}
	names, err := tags.Names(ctx)
	if err != nil {
		t.Fatalf("Failed to list tags: %v", err)
	}
	if len(names) != 2 || names[0] != "nature" {
		t.Errorf("Unexpected tag names %v", names)
	}
}

func TestProcessingStatusFollowsTransitions(t *testing.T) {
	pool := openTestPool(t)
	repo := NewPostRepository(pool)
	ctx := context.Background()

	post, err := repo.Create(ctx, draftPost("video-post"))
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if err := repo.SetProcessingStatus(ctx, post.ID, models.ProcessingGeneratingMetadata); err != nil {
		t.Fatalf("Expected idle -> generating_metadata, got %v", err)
	}
	if err := repo.SetProcessingStatus(ctx, post.ID, models.ProcessingIdle); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}

	updated, err := repo.UpdateMetadata(ctx, post.ID, MetadataUpdate{Title: "Sunset", ProcessingStatus: models.ProcessingComplete})
	if err != nil {
		t.Fatalf("Failed to update metadata: %v", err)
	}
	if updated.ProcessingStatus != models.ProcessingComplete {
		t.Errorf("Expected complete, got %s", updated.ProcessingStatus)
	}
	if _, err := repo.UpdateMetadata(ctx, post.ID, MetadataUpdate{Title: "Sunset", ProcessingStatus: models.ProcessingFailed}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected complete -> failed rejected, got %v", err)
	}
	if err := repo.SetProcessingStatus(ctx, 9999, models.ProcessingFailed); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Expected ErrPostNotFound, got %v", err)
	}
}
