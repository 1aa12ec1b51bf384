package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promptfinder/internal/metadata"
	"promptfinder/internal/models"
	"promptfinder/internal/repository"
	"promptfinder/internal/storage"
)

// RenameService moves a post's media to SEO-friendly keys.
type RenameService struct {
	posts PostStore
	store ObjectStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewRenameService(posts PostStore, store ObjectStore, logger zerolog.Logger) *RenameService {
	return &RenameService{
		posts: posts,
		store: store,
		log:   logger.With().Str("component", "rename").Logger(),
		now:   time.Now,
	}
}

type move struct {
	variant string
	oldKey  string
	newKey  string
	// resumed marks a copy that landed in an earlier attempt; it is the only copy left
	resumed bool
}

// RenamePost copies every variant to its new key, then points the post at the copies, and
// only then removes the old objects. A failure before the post is updated leaves the
// original media untouched.
func (s *RenameService) RenamePost(ctx context.Context, postID int64) (map[string]any, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !post.Live() {
		return map[string]any{"post_id": postID, "skipped": "deleted"}, nil
	}

	filename, err := s.filename(ctx, post)
	if err != nil {
		return nil, err
	}
	base := metadata.FilenameBase(filename)

	moves := s.plan(post, base)
	if len(moves) == 0 {
		return map[string]any{"post_id": postID, "renamed": 0, "seo_filename": filename}, nil
	}

	// phase 1: stage copies
	staged := make([]move, 0, len(moves))
	for _, m := range moves {
		if err := s.store.CopyVerified(ctx, m.oldKey, m.newKey); err != nil {
			if errors.Is(err, storage.ErrNotFound) && s.landed(ctx, m.newKey) {
				m.resumed = true
				staged = append(staged, m)
				continue
			}
			s.rollback(ctx, staged)
			return nil, fmt.Errorf("copy %s: %w", m.variant, err)
		}
		staged = append(staged, m)
	}

	// phase 2: point the post at the copies
	urls := make(map[string]string, len(staged))
	for _, m := range staged {
		urls[m.variant] = s.store.PublicURL(m.newKey)
	}
	if _, err := s.posts.UpdateMediaURLs(ctx, postID, urls); err != nil {
		s.rollback(ctx, staged)
		return nil, fmt.Errorf("update media urls: %w", err)
	}

	// phase 3: drop the old objects
	leftovers := 0
	for _, m := range staged {
		if m.resumed {
			continue
		}
		if err := s.store.Delete(ctx, m.oldKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			leftovers++
			s.log.Warn().Err(err).Str("key", m.oldKey).Msg("delete renamed source failed")
		}
	}

	s.log.Info().Int64("post_id", postID).Int("renamed", len(staged)).Str("seo_filename", filename).Msg("media renamed")
	return map[string]any{
		"post_id":      postID,
		"renamed":      len(staged),
		"leftovers":    leftovers,
		"seo_filename": filename,
		"media":        urls,
	}, nil
}

// filename returns the stored SEO filename, computing and storing one when missing.
func (s *RenameService) filename(ctx context.Context, post models.Post) (string, error) {
	if post.SEOFilename != "" {
		return post.SEOFilename, nil
	}
	computed := metadata.SEOFilename(post.Title, post.AIGenerator, s.now())
	stored, err := s.posts.SetSEOFilename(ctx, post.ID, computed)
	if err != nil {
		return "", fmt.Errorf("store seo filename: %w", err)
	}
	return stored, nil
}

func (s *RenameService) plan(post models.Post, base string) []move {
	var moves []move
	for variant, url := range post.MediaURLs() {
		oldKey, ok := s.store.KeyFromURL(url)
		if !ok {
			continue
		}
		newKey := storage.RenamedKey(oldKey, base)
		if newKey == oldKey {
			continue
		}
		moves = append(moves, move{variant: variant, oldKey: oldKey, newKey: newKey})
	}
	return moves
}

func (s *RenameService) landed(ctx context.Context, key string) bool {
	head, err := s.store.Head(ctx, key)
	return err == nil && head.Exists
}

func (s *RenameService) rollback(ctx context.Context, staged []move) {
	for _, m := range staged {
		if m.resumed {
			continue
		}
		if err := s.store.Delete(ctx, m.newKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("key", m.newKey).Msg("remove staged copy failed")
		}
	}
}
