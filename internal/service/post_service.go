package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promptfinder/internal/models"
	"promptfinder/internal/repository"
	"promptfinder/internal/storage"
)

const purgeBatch = 100

type PostService struct {
	posts      PostStore
	store      ObjectStore
	tags       TagCatalog
	moderator  Moderator
	trashGrace time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

var _ Posts = (*PostService)(nil)

func NewPostService(posts PostStore, store ObjectStore, tags TagCatalog, moderator Moderator, trashGrace time.Duration, logger zerolog.Logger) *PostService {
	if trashGrace <= 0 {
		trashGrace = 30 * 24 * time.Hour
	}
	return &PostService{
		posts:      posts,
		store:      store,
		tags:       tags,
		moderator:  moderator,
		trashGrace: trashGrace,
		log:        logger.With().Str("component", "posts").Logger(),
		now:        time.Now,
	}
}

func (s *PostService) load(ctx context.Context, id int64) (models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}

// Get hides posts the viewer may not see behind ErrNotFound.
func (s *PostService) Get(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !post.VisibleTo(viewer) {
		return models.Post{}, ErrNotFound
	}
	return post, nil
}

// Edit applies the change and re-runs moderation over the edited content.
func (s *PostService) Edit(ctx context.Context, viewer models.Viewer, id int64, edit repository.PostEdit) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !post.Live() {
		return models.Post{}, ErrNotFound
	}
	if post.AuthorID != viewer.ID && !viewer.Staff {
		return models.Post{}, ErrForbidden
	}

	if edit.Tags != nil {
		tags, err := catalogTags(ctx, s.tags, edit.Tags)
		if err != nil {
			return models.Post{}, err
		}
		edit.Tags = tags
	}

	updated, err := s.posts.UpdateContent(ctx, id, edit)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTooManyTags):
			return models.Post{}, invalidInput(fmt.Sprintf("At most %d tags are allowed.", models.MaxTagsPerPost))
		case errors.Is(err, repository.ErrPostNotFound):
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, err
	}

	res, err := s.moderator.Moderate(ctx, id, true)
	if err != nil {
		s.log.Error().Err(err).Int64("post_id", id).Msg("re-moderation after edit failed")
		return updated, nil
	}
	return res.Post, nil
}

func (s *PostService) Delete(ctx context.Context, viewer models.Viewer, id int64) error {
	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != viewer.ID {
		return ErrForbidden
	}
	if err := s.posts.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.log.Info().Int64("post_id", id).Str("user_id", viewer.ID).Msg("post moved to trash")
	return nil
}

func (s *PostService) Restore(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if post.AuthorID != viewer.ID {
		return models.Post{}, ErrForbidden
	}
	if post.Live() {
		return post, nil
	}
	restored, err := s.posts.Restore(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, err
	}
	return restored, nil
}

// PurgeTrash hard-deletes posts that have been in the trash past the grace period, media first.
func (s *PostService) PurgeTrash(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.trashGrace)
	posts, err := s.posts.ListDeletedBefore(ctx, cutoff, purgeBatch)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, post := range posts {
		for variant, url := range post.MediaURLs() {
			key, ok := s.store.KeyFromURL(url)
			if !ok {
				continue
			}
			if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warn().Err(err).Int64("post_id", post.ID).Str("variant", variant).Msg("delete media failed")
			}
		}
		if err := s.posts.HardDelete(ctx, post.ID); err != nil {
			if errors.Is(err, repository.ErrPostNotFound) {
				continue
			}
			return purged, fmt.Errorf("purge post %d: %w", post.ID, err)
		}
		purged++
	}
	if purged > 0 {
		s.log.Info().Int("count", purged).Msg("trash purged")
	}
	return purged, nil
}
