package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promptfinder/internal/mocks"
	"promptfinder/internal/models"
	"promptfinder/internal/repository"
	"promptfinder/internal/service"
)

var catalog = &mocks.MockTagCatalog{Tags: []string{"city", "neon", "portrait", "landscape", "Cyberpunk"}}

func newPostService(t *testing.T) (*service.PostService, *mocks.MockPostStore, *mocks.MockObjectStore, *mocks.MockModerator) {
	t.Helper()
	posts := mocks.NewMockPostStore()
	store := mocks.NewMockObjectStore()
	moderator := &mocks.MockModerator{Verdicts: approvedVerdicts(), Posts: posts}
	return service.NewPostService(posts, store, catalog, moderator, 30*24*time.Hour, zerolog.Nop()), posts, store, moderator
}

func TestGetHidesInvisiblePosts(t *testing.T) {
	svc, posts, _, _ := newPostService(t)
	id := posts.Add(models.Post{AuthorID: "alice", Status: models.PostStatusDraft, ModerationStatus: models.ModerationPending})

	if _, err := svc.Get(context.Background(), models.Viewer{ID: "bob"}, id); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for stranger, got %v", err)
	}
	if _, err := svc.Get(context.Background(), alice, id); err != nil {
		t.Errorf("Expected author to see draft, got %v", err)
	}
	if _, err := svc.Get(context.Background(), alice, 999); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing post, got %v", err)
	}
}

func TestEditRemoderates(t *testing.T) {
	svc, posts, _, moderator := newPostService(t)
	id := posts.Add(models.Post{
		AuthorID: "alice",
		Title:    "Old",
		Image: &models.ImageMedia{
			URL:       mocks.CDNBase + "o.jpg",
			ThumbURL:  mocks.CDNBase + "t.jpg",
			MediumURL: mocks.CDNBase + "m.jpg",
			LargeURL:  mocks.CDNBase + "l.jpg",
			AltURL:    mocks.CDNBase + "a.webp",
		},
	})

	title := "New title"
	post, err := svc.Edit(context.Background(), alice, id, repository.PostEdit{Title: &title})
	if err != nil {
		t.Fatalf("Failed to edit: %v", err)
	}
	if post.Title != "New title" {
		t.Errorf("Expected new title, got %q", post.Title)
	}
	if len(moderator.Moderated) != 1 || moderator.Moderated[0] != id {
		t.Errorf("Expected forced re-moderation, got %v", moderator.Moderated)
	}
	if post.Status != models.PostStatusPublished {
		t.Errorf("Expected published after approval, got %s", post.Status)
	}
}

func TestEditPermissions(t *testing.T) {
	svc, posts, _, _ := newPostService(t)
	id := posts.Add(models.Post{AuthorID: "alice"})
	title := "x"

	if _, err := svc.Edit(context.Background(), models.Viewer{ID: "bob"}, id, repository.PostEdit{Title: &title}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Edit(context.Background(), models.Viewer{ID: "mod", Staff: true}, id, repository.PostEdit{Title: &title}); err != nil {
		t.Errorf("Expected staff edit allowed, got %v", err)
	}

	tags := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	_, err := svc.Edit(context.Background(), alice, id, repository.PostEdit{Tags: tags})
	var ie *service.InputError
	if !errors.As(err, &ie) {
		t.Errorf("Expected InputError for too many tags, got %v", err)
	}
}

func TestEditChecksTagsAgainstCatalog(t *testing.T) {
	svc, posts, _, _ := newPostService(t)
	id := posts.Add(models.Post{AuthorID: "alice", Tags: []string{"city"}})

	_, err := svc.Edit(context.Background(), alice, id, repository.PostEdit{Tags: []string{"neon", "made-up"}})
	var ie *service.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("Expected InputError for unknown tag, got %v", err)
	}
	if got := posts.Get(id).Tags; len(got) != 1 || got[0] != "city" {
		t.Errorf("Expected tags unchanged, got %v", got)
	}

	post, err := svc.Edit(context.Background(), alice, id, repository.PostEdit{Tags: []string{"Neon", "CYBERPUNK"}})
	if err != nil {
		t.Fatalf("Failed to edit: %v", err)
	}
	if len(post.Tags) != 2 || post.Tags[0] != "neon" || post.Tags[1] != "cyberpunk" {
		t.Errorf("Expected folded catalog tags, got %v", post.Tags)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	svc, posts, _, _ := newPostService(t)
	id := posts.Add(models.Post{AuthorID: "alice"})
	ctx := context.Background()

	if err := svc.Delete(ctx, models.Viewer{ID: "mod", Staff: true}, id); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Expected only the owner to delete, got %v", err)
	}
	if err := svc.Delete(ctx, alice, id); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if posts.Get(id).DeletedAt == nil {
		t.Fatal("Expected post in trash")
	}
	if err := svc.Delete(ctx, alice, id); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Expected second delete to miss, got %v", err)
	}

	restored, err := svc.Restore(ctx, alice, id)
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Error("Expected post restored")
	}
}

func TestPurgeTrash(t *testing.T) {
	svc, posts, store, _ := newPostService(t)
	old := time.Now().Add(-31 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	store.Objects["media/images/old/original/a.jpg"] = []byte("a")
	store.Objects["media/images/old/thumb/a.png"] = []byte("t")
	oldID := posts.Add(models.Post{
		AuthorID:  "alice",
		DeletedAt: &old,
		Image: &models.ImageMedia{
			URL:      mocks.CDNBase + "media/images/old/original/a.jpg",
			ThumbURL: mocks.CDNBase + "media/images/old/thumb/a.png",
		},
	})
	recentID := posts.Add(models.Post{AuthorID: "alice", DeletedAt: &recent})

	n, err := svc.PurgeTrash(context.Background())
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 purged, got %d", n)
	}
	if _, ok := posts.Posts[oldID]; ok {
		t.Error("Expected old post hard deleted")
	}
	if _, ok := posts.Posts[recentID]; !ok {
		t.Error("Expected recent trash kept")
	}
	if len(store.Objects) != 0 {
		t.Errorf("Expected media removed, got %v", store.Objects)
	}
}
