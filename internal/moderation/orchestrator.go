package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promptfinder/internal/config"
	"promptfinder/internal/metrics"
	"promptfinder/internal/models"
)

// Subject is what the moderators inspect. MediaURL is the image URL, or for videos any
// input the transcoder can read (local path or URL).
type Subject struct {
	Text     string
	Kind     models.MediaKind
	MediaURL string
	Duration float64
	// Fallback is sent to the vision layer when no video frame can be produced.
	Fallback string
}

func (s Subject) HasMedia() bool {
	return s.MediaURL != ""
}

func SubjectFor(p models.Post) Subject {
	s := Subject{
		Text: CombinedText(p.Title, p.Content, p.Excerpt),
		Kind: p.MediaKind(),
	}
	switch {
	case p.Video != nil:
		s.MediaURL = p.Video.URL
		s.Duration = p.Video.Duration
		s.Fallback = p.Video.ThumbURL
	case p.Image != nil:
		s.MediaURL = p.Image.URL
	}
	return s
}

type TextModerator interface {
	ModerateText(ctx context.Context, text string) Verdict
}

type MediaModerator interface {
	ModerateMedia(ctx context.Context, subject Subject) Verdict
}

type PostStore interface {
	GetByID(ctx context.Context, id int64) (models.Post, error)
	CommitModeration(ctx context.Context, postID int64, logs []models.ModerationLog, update models.ModerationUpdate) (models.Post, error)
	ListIDsByModerationStatus(ctx context.Context, status models.ModerationStatus, limit int) ([]int64, error)
}

type Result struct {
	Post    models.Post
	Outcome Outcome
	Skipped bool
	Message string
}

type BulkStats struct {
	TotalProcessed int `json:"total_processed"`
	Approved       int `json:"approved"`
	Rejected       int `json:"rejected"`
	Flagged        int `json:"flagged"`
	Errors         int `json:"errors"`
}

type Orchestrator struct {
	lexical TextModerator
	text    TextModerator
	vision  MediaModerator
	posts   PostStore
	cfg     config.ModerationConfig
	log     zerolog.Logger
	now     func() time.Time
}

func NewOrchestrator(lexical, text TextModerator, vision MediaModerator, posts PostStore, cfg config.ModerationConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		lexical: lexical,
		text:    text,
		vision:  vision,
		posts:   posts,
		cfg:     cfg,
		log:     logger.With().Str("component", "moderation").Logger(),
		now:     time.Now,
	}
}

// Collect runs every enabled moderator against the subject. It has no side effects on posts,
// so it can gate an upload before any post exists.
func (o *Orchestrator) Collect(ctx context.Context, subject Subject) []Verdict {
	verdicts := make([]Verdict, 0, 3)

	verdicts = append(verdicts, o.timed(models.ServiceLexical, func() Verdict {
		return o.lexical.ModerateText(ctx, subject.Text)
	}))

	if o.cfg.TextEnabled && o.text != nil {
		verdicts = append(verdicts, o.timed(models.ServiceText, func() Verdict {
			return o.text.ModerateText(ctx, subject.Text)
		}))
	}

	if o.cfg.VisionEnabled && o.vision != nil {
		if !subject.HasMedia() {
			verdicts = append(verdicts, Approved(models.ServiceVision, "No media to analyse"))
		} else {
			verdicts = append(verdicts, o.timed(models.ServiceVision, func() Verdict {
				return o.vision.ModerateMedia(ctx, subject)
			}))
		}
	}

	return verdicts
}

func (o *Orchestrator) timed(service models.ModerationService, run func() Verdict) Verdict {
	start := time.Now()
	v := run()
	v.Service = service
	metrics.ObserveModeration(string(service), string(v.Status), time.Since(start))
	if v.Errored() {
		o.log.Warn().Str("service", string(service)).Str("status", string(v.Status)).Str("error", v.Err).Msg("moderator degraded")
	}
	return v
}

// Commit persists the verdicts and the resulting post state in one transaction.
// Only an approved outcome on a post with complete media publishes it.
func (o *Orchestrator) Commit(ctx context.Context, post models.Post, verdicts []Verdict) (Result, error) {
	outcome := Aggregate(verdicts)

	postStatus := models.PostStatusDraft
	if outcome.Status == models.ModerationApproved && post.MediaComplete() {
		postStatus = models.PostStatusPublished
	}

	logs := make([]models.ModerationLog, 0, len(verdicts))
	for _, v := range verdicts {
		logs = append(logs, v.Log())
	}

	updated, err := o.posts.CommitModeration(ctx, post.ID, logs, models.ModerationUpdate{
		Status:         outcome.Status,
		RequiresReview: outcome.RequiresReview,
		CompletedAt:    o.now().UTC(),
		PostStatus:     postStatus,
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit moderation for post %d: %w", post.ID, err)
	}

	o.log.Info().
		Int64("post_id", post.ID).
		Str("moderation_status", string(outcome.Status)).
		Str("status", string(postStatus)).
		Bool("requires_review", outcome.RequiresReview).
		Msg("moderation committed")

	return Result{Post: updated, Outcome: outcome}, nil
}

// Moderate runs the full pipeline for a stored post.
func (o *Orchestrator) Moderate(ctx context.Context, postID int64, force bool) (Result, error) {
	post, err := o.posts.GetByID(ctx, postID)
	if err != nil {
		return Result{}, err
	}

	if post.ModerationStatus != models.ModerationPending && !force {
		return Result{
			Post: post,
			Outcome: Outcome{
				Status:         post.ModerationStatus,
				RequiresReview: post.RequiresManualReview,
			},
			Skipped: true,
			Message: "Already moderated",
		}, nil
	}

	return o.Commit(ctx, post, o.Collect(ctx, SubjectFor(post)))
}

// BulkModerate re-runs moderation for up to BulkBatchSize posts in the given state.
func (o *Orchestrator) BulkModerate(ctx context.Context, status models.ModerationStatus) (BulkStats, error) {
	limit := o.cfg.BulkBatchSize
	if limit <= 0 {
		limit = 100
	}
	ids, err := o.posts.ListIDsByModerationStatus(ctx, status, limit)
	if err != nil {
		return BulkStats{}, fmt.Errorf("list posts for bulk moderation: %w", err)
	}

	var stats BulkStats
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		res, err := o.Moderate(ctx, id, status != models.ModerationPending)
		stats.TotalProcessed++
		if err != nil {
			stats.Errors++
			o.log.Error().Err(err).Int64("post_id", id).Msg("bulk moderation failed")
			continue
		}
		switch res.Outcome.Status {
		case models.ModerationApproved:
			stats.Approved++
		case models.ModerationRejected:
			stats.Rejected++
		default:
			stats.Flagged++
		}
	}
	return stats, nil
}
