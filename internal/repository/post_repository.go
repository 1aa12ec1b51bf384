package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"promptfinder/internal/ids"
	"promptfinder/internal/models"
)

const maxSlugAttempts = 20

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

const postColumns = `
	id, slug, processing_uuid, author_id, title, content, excerpt, ai_generator, tags,
	media_kind, image_url, image_thumb_url, image_medium_url, image_large_url, image_alt_url,
	video_url, video_thumb_url, video_duration, media_width, media_height,
	status, deleted_at, moderation_status, requires_manual_review, moderation_completed_at,
	processing_status, seo_filename, alt_text, ai_description, checksum, created_at, updated_at`

func scanPost(row pgx.Row) (models.Post, error) {
	var p models.Post
	var kind, imageURL, thumbURL, mediumURL, largeURL, altURL, videoURL, videoThumbURL string
	var duration float64
	var width, height int
	err := row.Scan(
		&p.ID, &p.Slug, &p.ProcessingUUID, &p.AuthorID, &p.Title, &p.Content, &p.Excerpt, &p.AIGenerator, &p.Tags,
		&kind, &imageURL, &thumbURL, &mediumURL, &largeURL, &altURL,
		&videoURL, &videoThumbURL, &duration, &width, &height,
		&p.Status, &p.DeletedAt, &p.ModerationStatus, &p.RequiresManualReview, &p.ModerationCompletedAt,
		&p.ProcessingStatus, &p.SEOFilename, &p.AltText, &p.AIDescription, &p.Checksum, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrPostNotFound
		}
		return models.Post{}, err
	}

	if models.MediaKind(kind) == models.MediaVideo {
		p.Video = &models.VideoMedia{URL: videoURL, ThumbURL: videoThumbURL, Duration: duration, Width: width, Height: height}
	} else {
		p.Image = &models.ImageMedia{
			URL:       imageURL,
			ThumbURL:  thumbURL,
			MediumURL: mediumURL,
			LargeURL:  largeURL,
			AltURL:    altURL,
			Width:     width,
			Height:    height,
		}
	}
	return p, nil
}

type mediaColumns struct {
	kind          models.MediaKind
	image, thumb  string
	medium, large string
	alt           string
	video, vthumb string
	duration      float64
	width, height int
}

func mediaOf(p models.Post) mediaColumns {
	m := mediaColumns{kind: p.MediaKind()}
	switch {
	case p.Video != nil:
		m.video, m.vthumb, m.duration = p.Video.URL, p.Video.ThumbURL, p.Video.Duration
		m.width, m.height = p.Video.Width, p.Video.Height
	case p.Image != nil:
		m.image, m.thumb, m.medium, m.large, m.alt = p.Image.URL, p.Image.ThumbURL, p.Image.MediumURL, p.Image.LargeURL, p.Image.AltURL
		m.width, m.height = p.Image.Width, p.Image.Height
	}
	return m
}

func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{})
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > models.MaxTagsPerPost {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTags, len(out), models.MaxTagsPerPost)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// slugCandidate returns base for attempt 0, then base-2, base-3 and finally a random suffix.
func slugCandidate(base string, attempt int) string {
	switch {
	case attempt == 0:
		return base
	case attempt < maxSlugAttempts-1:
		return fmt.Sprintf("%s-%d", base, attempt+1)
	default:
		return base + "-" + ids.Short()[:6]
	}
}

// Create inserts a draft post, suffixing the slug until it is unique among live posts.
func (r *PostRepository) Create(ctx context.Context, post models.Post) (models.Post, error) {
	tags, err := normalizeTags(post.Tags)
	if err != nil {
		return models.Post{}, err
	}
	m := mediaOf(post)

	const query = `
		INSERT INTO posts (
			slug, processing_uuid, author_id, title, content, excerpt, ai_generator, tags,
			media_kind, image_url, image_thumb_url, image_medium_url, image_large_url, image_alt_url,
			video_url, video_thumb_url, video_duration, media_width, media_height,
			status, moderation_status, processing_status, seo_filename, alt_text, ai_description, checksum,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			'draft', 'pending', $20, $21, $22, $23, $24,
			NOW(), NOW()
		)
		RETURNING ` + postColumns

	processing := post.ProcessingStatus
	if processing == "" {
		processing = models.ProcessingIdle
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		created, err := scanPost(r.pool.QueryRow(ctx, query,
			slugCandidate(post.Slug, attempt), post.ProcessingUUID, post.AuthorID, post.Title, post.Content,
			post.Excerpt, post.AIGenerator, tags,
			m.kind, m.image, m.thumb, m.medium, m.large, m.alt,
			m.video, m.vthumb, m.duration, m.width, m.height,
			processing, post.SEOFilename, post.AltText, post.AIDescription, post.Checksum,
		))
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return models.Post{}, fmt.Errorf("insert post: %w", err)
		}
		return created, nil
	}
	return models.Post{}, fmt.Errorf("insert post: no free slug for %q", post.Slug)
}

func (r *PostRepository) GetByID(ctx context.Context, id int64) (models.Post, error) {
	return getPost(ctx, r.pool, id, false)
}

func getPost(ctx context.Context, q querier, id int64, forUpdate bool) (models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanPost(q.QueryRow(ctx, query, id))
}

// PostEdit carries owner-editable fields; nil means unchanged.
type PostEdit struct {
	Title   *string
	Content *string
	Excerpt *string
	Tags    []string
}

func (r *PostRepository) UpdateContent(ctx context.Context, id int64, edit PostEdit) (models.Post, error) {
	var tags []string
	if edit.Tags != nil {
		normalized, err := normalizeTags(edit.Tags)
		if err != nil {
			return models.Post{}, err
		}
		tags = normalized
	}

	const query = `
		UPDATE posts
		SET title = COALESCE($2, title),
		    content = COALESCE($3, content),
		    excerpt = COALESCE($4, excerpt),
		    tags = COALESCE($5, tags),
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + postColumns

	post, err := scanPost(r.pool.QueryRow(ctx, query, id, edit.Title, edit.Content, edit.Excerpt, tags))
	if err != nil && !errors.Is(err, ErrPostNotFound) {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, err
}

// MetadataUpdate is what the metadata generator writes back.
type MetadataUpdate struct {
	Title            string
	Slug             string
	Excerpt          string
	Description      string
	Tags             []string
	SEOFilename      string
	AltText          string
	ProcessingStatus models.ProcessingStatus
}

// UpdateMetadata stores generated metadata and moves the slug to a unique variant of u.Slug.
func (r *PostRepository) UpdateMetadata(ctx context.Context, id int64, u MetadataUpdate) (models.Post, error) {
	tags, err := normalizeTags(u.Tags)
	if err != nil {
		return models.Post{}, err
	}

	const query = `
		UPDATE posts
		SET title = $2,
		    slug = CASE WHEN $3 = '' THEN slug ELSE $3 END,
		    excerpt = CASE WHEN excerpt = '' THEN $4 ELSE excerpt END,
		    ai_description = $5,
		    tags = CASE WHEN cardinality(tags) = 0 THEN $6 ELSE tags END,
		    seo_filename = $7,
		    alt_text = $8,
		    processing_status = $9,
		    updated_at = NOW()
		WHERE id = $1 AND processing_status = ANY($10)
		RETURNING ` + postColumns

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug := ""
		if u.Slug != "" {
			slug = slugCandidate(u.Slug, attempt)
		}
		post, err := scanPost(r.pool.QueryRow(ctx, query,
			id, u.Title, slug, u.Excerpt, u.Description, tags, u.SEOFilename, u.AltText, u.ProcessingStatus,
			processingSources(u.ProcessingStatus),
		))
		if isUniqueViolation(err) {
			continue
		}
		if errors.Is(err, ErrPostNotFound) {
			return models.Post{}, r.transitionMiss(ctx, id, u.ProcessingStatus)
		}
		if err != nil && !errors.Is(err, ErrPostNotFound) {
			return models.Post{}, fmt.Errorf("update metadata: %w", err)
		}
		return post, err
	}
	return models.Post{}, fmt.Errorf("update metadata: no free slug for %q", u.Slug)
}

// SetProcessingStatus moves the post along the processing state machine.
func (r *PostRepository) SetProcessingStatus(ctx context.Context, id int64, status models.ProcessingStatus) error {
	const query = `
		UPDATE posts SET processing_status = $2, updated_at = NOW()
		WHERE id = $1 AND processing_status = ANY($3)`
	tag, err := r.pool.Exec(ctx, query, id, status, processingSources(status))
	if err != nil {
		return fmt.Errorf("set processing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, id, status)
	}
	return nil
}

// transitionMiss explains an update that matched no row: either the post is gone or the
// move is not in the transition table.
func (r *PostRepository) transitionMiss(ctx context.Context, id int64, to models.ProcessingStatus) error {
	var current models.ProcessingStatus
	err := r.pool.QueryRow(ctx, `SELECT processing_status FROM posts WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("read processing status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

func processingSources(to models.ProcessingStatus) []string {
	sources := models.ProcessingSources(to)
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

// SetSEOFilename stores the filename only when none is recorded yet and returns the stored value.
func (r *PostRepository) SetSEOFilename(ctx context.Context, id int64, filename string) (string, error) {
	const query = `
		UPDATE posts
		SET seo_filename = CASE WHEN seo_filename = '' THEN $2 ELSE seo_filename END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING seo_filename`
	var stored string
	if err := r.pool.QueryRow(ctx, query, id, filename).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPostNotFound
		}
		return "", fmt.Errorf("set seo filename: %w", err)
	}
	return stored, nil
}

// UpdateMediaURLs swaps media URLs by variant in one transaction.
func (r *PostRepository) UpdateMediaURLs(ctx context.Context, id int64, urls map[string]string) (models.Post, error) {
	var updated models.Post
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		post, err := getPost(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated, err = writeMedia(ctx, tx, post.WithMediaURLs(urls))
		return err
	})
	if err != nil {
		return models.Post{}, err
	}
	return updated, nil
}

func writeMedia(ctx context.Context, q querier, post models.Post) (models.Post, error) {
	m := mediaOf(post)
	const query = `
		UPDATE posts
		SET image_url = $2, image_thumb_url = $3, image_medium_url = $4, image_large_url = $5, image_alt_url = $6,
		    video_url = $7, video_thumb_url = $8, video_duration = $9, media_width = $10, media_height = $11,
		    checksum = COALESCE($12, checksum),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + postColumns
	updated, err := scanPost(q.QueryRow(ctx, query,
		post.ID, m.image, m.thumb, m.medium, m.large, m.alt,
		m.video, m.vthumb, m.duration, m.width, m.height, post.Checksum,
	))
	if err != nil && !errors.Is(err, ErrPostNotFound) {
		return models.Post{}, fmt.Errorf("update media: %w", err)
	}
	return updated, err
}

func (r *PostRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE posts SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Restore brings a post back from trash, suffixing its slug if a live post took it meanwhile.
func (r *PostRepository) Restore(ctx context.Context, id int64) (models.Post, error) {
	var restored models.Post
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		post, err := getPost(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if post.DeletedAt == nil {
			restored = post
			return nil
		}

		base := post.Slug
		for attempt := 0; attempt < maxSlugAttempts; attempt++ {
			candidate := slugCandidate(base, attempt)
			var taken bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND deleted_at IS NULL AND id <> $2)`,
				candidate, id,
			).Scan(&taken); err != nil {
				return err
			}
			if taken {
				continue
			}
			restored, err = scanPost(tx.QueryRow(ctx,
				`UPDATE posts SET deleted_at = NULL, slug = $2, updated_at = NOW() WHERE id = $1 RETURNING `+postColumns,
				id, candidate,
			))
			return err
		}
		return fmt.Errorf("no free slug for %q", base)
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return models.Post{}, err
		}
		return models.Post{}, fmt.Errorf("restore post: %w", err)
	}
	return restored, nil
}

func (r *PostRepository) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE deleted_at IS NOT NULL AND deleted_at < $1 ORDER BY deleted_at LIMIT $2`
	return r.list(ctx, query, cutoff, limit)
}

func (r *PostRepository) HardDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PostRepository) CountRecentByAuthor(ctx context.Context, authorID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM posts WHERE author_id = $1 AND created_at >= $2`,
		authorID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent posts: %w", err)
	}
	return n, nil
}

func (r *PostRepository) ListIDsByModerationStatus(ctx context.Context, status models.ModerationStatus, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM posts WHERE moderation_status = $1 AND deleted_at IS NULL ORDER BY created_at LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostRepository) list(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

var (
	ErrPostNotFound = errors.New("post not found")
	ErrTooManyTags  = errors.New("too many tags")

	// ErrInvalidTransition rejects a processing status change outside the transition table.
	ErrInvalidTransition = errors.New("invalid processing transition")
)
