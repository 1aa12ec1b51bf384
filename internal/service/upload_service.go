package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/config"
	"promptfinder/internal/jobs"
	"promptfinder/internal/media/imageproc"
	"promptfinder/internal/media/videoproc"
	"promptfinder/internal/metadata"
	"promptfinder/internal/metrics"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
	"promptfinder/internal/repository"
	"promptfinder/internal/storage"
)

const (
	quotaWindow       = 7 * 24 * time.Hour
	reviewWarning     = "Your post needs a manual review before it is published."
	metadataWarning   = "AI metadata generation timed out; default title and tags were used."
	incompleteWarning = "Some image sizes could not be generated; the post stays in draft."
	moderationFailed  = "Moderation service error - content blocked for safety."
)

type PresignInput struct {
	ContentType   string
	ContentLength int64
	Filename      string
}

type PresignOutput struct {
	PresignedURL     string    `json:"presigned_url"`
	Key              string    `json:"key"`
	CDNURL           string    `json:"cdn_url"`
	ExpiresIn        int       `json:"expires_in"`
	IsVideo          bool      `json:"is_video"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

type CompleteInput struct {
	Key         string
	Prompt      string
	Title       string
	Excerpt     string
	AIGenerator string
	Tags        []string
}

type CompleteOutput struct {
	PostID               int64                   `json:"post_id"`
	Slug                 string                  `json:"slug"`
	Status               models.PostStatus       `json:"status"`
	ModerationStatus     models.ModerationStatus `json:"moderation_status"`
	RequiresManualReview bool                    `json:"requires_manual_review"`
	Warning              string                  `json:"warning,omitempty"`
	JobID                string                  `json:"job_id,omitempty"`
	RenameJobID          string                  `json:"rename_job_id,omitempty"`
}

type ImageCheck struct {
	IsSafe      bool                    `json:"is_safe"`
	Status      models.ModerationStatus `json:"status"`
	Categories  []string                `json:"categories"`
	Severity    models.Severity         `json:"severity"`
	Confidence  float64                 `json:"confidence"`
	Explanation string                  `json:"explanation"`
	Timeout     bool                    `json:"timeout,omitempty"`
}

type SuggestionInput struct {
	ImageURL    string
	Prompt      string
	AIGenerator string
}

// UploadDeps groups the collaborators of UploadService.
type UploadDeps struct {
	Store     ObjectStore
	Posts     PostStore
	Sessions  *SessionStore
	Moderator Moderator
	Vision    ImageModerator
	Metadata  MetadataGenerator
	Images    ImageProcessor
	Videos    VideoProcessor
	Jobs      JobQueue
	Tags      TagCatalog
}

type UploadService struct {
	UploadDeps
	cfg config.UploadConfig
	log zerolog.Logger
	now func() time.Time
}

var _ Uploads = (*UploadService)(nil)

func NewUploadService(deps UploadDeps, cfg config.UploadConfig, logger zerolog.Logger) *UploadService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 45 * time.Minute
	}
	if cfg.ExtensionWindow <= 0 {
		cfg.ExtensionWindow = 30 * time.Minute
	}
	return &UploadService{
		UploadDeps: deps,
		cfg:        cfg,
		log:        logger.With().Str("component", "uploads").Logger(),
		now:        time.Now,
	}
}

func (s *UploadService) Presign(ctx context.Context, viewer models.Viewer, in PresignInput) (PresignOutput, error) {
	now := s.now().UTC()

	if s.cfg.WeeklyLimit > 0 && !viewer.Staff {
		count, err := s.Posts.CountRecentByAuthor(ctx, viewer.ID, now.Add(-quotaWindow))
		if err != nil {
			return PresignOutput{}, fmt.Errorf("count recent uploads: %w", err)
		}
		if count >= s.cfg.WeeklyLimit {
			metrics.PresignsTotal.WithLabelValues("unknown", "quota").Inc()
			return PresignOutput{}, ErrQuotaExceeded
		}
	}

	presigned, err := s.Store.PresignPut(ctx, in.ContentType, in.ContentLength, in.Filename)
	if err != nil {
		var pe *storage.PresignError
		if errors.As(err, &pe) {
			metrics.PresignsTotal.WithLabelValues("unknown", "invalid").Inc()
			return PresignOutput{}, invalidInput(pe.Message)
		}
		metrics.PresignsTotal.WithLabelValues("unknown", "error").Inc()
		return PresignOutput{}, err
	}

	if previous, err := s.Sessions.Get(ctx, viewer.ID); err == nil && previous.Key != presigned.Key {
		// the user abandoned the previous upload
		if err := s.Store.Delete(ctx, previous.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("key", previous.Key).Msg("delete abandoned upload failed")
		}
	}

	session := models.UploadSession{
		UserID:      viewer.ID,
		Key:         presigned.Key,
		Kind:        presigned.Kind,
		ContentType: strings.ToLower(in.ContentType),
		StartedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
	}
	if err := s.Sessions.Start(ctx, session); err != nil {
		return PresignOutput{}, err
	}

	metrics.PresignsTotal.WithLabelValues(string(presigned.Kind), "ok").Inc()
	s.log.Info().Str("user_id", viewer.ID).Str("key", presigned.Key).Bool("video", presigned.IsVideo).Msg("upload presigned")

	return PresignOutput{
		PresignedURL:     presigned.URL,
		Key:              presigned.Key,
		CDNURL:           presigned.CDNURL,
		ExpiresIn:        presigned.ExpiresIn,
		IsVideo:          presigned.IsVideo,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// Complete turns an uploaded blob into a post. Blobs that fail validation or the safety
// gate are deleted before returning.
func (s *UploadService) Complete(ctx context.Context, viewer models.Viewer, in CompleteInput) (CompleteOutput, error) {
	session, err := s.Sessions.Get(ctx, viewer.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return CompleteOutput{}, ErrSessionExpired
		}
		return CompleteOutput{}, err
	}
	if session.Key != in.Key {
		return CompleteOutput{}, ErrSessionExpired
	}
	if session.Expired(s.now()) {
		s.discard(ctx, in.Key)
		_ = s.Sessions.Delete(ctx, viewer.ID)
		metrics.UploadsTotal.WithLabelValues(string(session.Kind), "expired").Inc()
		return CompleteOutput{}, ErrSessionExpired
	}

	generator, ok := models.LookupGenerator(in.AIGenerator)
	if !ok {
		return CompleteOutput{}, invalidInput(fmt.Sprintf("Unknown AI generator: %s", in.AIGenerator))
	}
	if !generator.Supports(session.Kind) {
		return CompleteOutput{}, invalidInput(fmt.Sprintf("%s does not support %s uploads.", generator.Name, session.Kind))
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return CompleteOutput{}, invalidInput("Prompt text is required.")
	}
	tags, err := catalogTags(ctx, s.Tags, in.Tags)
	if err != nil {
		return CompleteOutput{}, err
	}
	in.Tags = tags

	head, err := s.Store.Head(ctx, in.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return CompleteOutput{}, ErrNotFound
		}
		return CompleteOutput{}, err
	}

	var out CompleteOutput
	if session.Kind == models.MediaVideo {
		out, err = s.completeVideo(ctx, viewer, in, generator, session, head)
	} else {
		out, err = s.completeImage(ctx, viewer, in, generator, head)
	}
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(string(session.Kind), resultLabel(err)).Inc()
		return CompleteOutput{}, err
	}

	if err := s.Sessions.Delete(ctx, viewer.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", viewer.ID).Msg("clear upload session failed")
	}
	metrics.UploadsTotal.WithLabelValues(string(session.Kind), "ok").Inc()
	return out, nil
}

func (s *UploadService) completeImage(ctx context.Context, viewer models.Viewer, in CompleteInput, generator models.AIGenerator, head storage.HeadResult) (CompleteOutput, error) {
	if head.Size > storage.MaxImagePresignBytes {
		s.discard(ctx, in.Key)
		return CompleteOutput{}, invalidInput(fmt.Sprintf("File too large. Maximum size is %dMB.", storage.MaxImagePresignBytes>>20))
	}

	data, err := s.Store.Get(ctx, in.Key, storage.MaxImagePresignBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			s.discard(ctx, in.Key)
			return CompleteOutput{}, invalidInput(fmt.Sprintf("File too large. Maximum size is %dMB.", storage.MaxImagePresignBytes>>20))
		}
		if errors.Is(err, storage.ErrNotFound) {
			return CompleteOutput{}, ErrNotFound
		}
		return CompleteOutput{}, err
	}

	processed, err := s.Images.Process(data)
	if err != nil {
		s.discard(ctx, in.Key)
		if errors.Is(err, imageproc.ErrInvalidImage) {
			return CompleteOutput{}, invalidInput("Invalid image file.")
		}
		return CompleteOutput{}, err
	}

	preview, _ := processed.Output(models.VariantMedium)
	verdicts := s.Moderator.Collect(ctx, moderation.Subject{
		Text:     moderation.CombinedText(in.Title, in.Prompt, in.Excerpt),
		Kind:     models.MediaImage,
		MediaURL: ai.EncodeDataURL(preview.ContentType, preview.Data),
	})
	if err := s.gate(ctx, verdicts, in.Key); err != nil {
		return CompleteOutput{}, err
	}

	media, complete := s.storeVariants(ctx, in.Key, processed)

	meta := s.Metadata.Generate(ctx, metadata.Request{
		ImageData:   preview.Data,
		ContentType: preview.ContentType,
		PromptText:  in.Prompt,
		Generator:   generator.Name,
	})

	processing := models.ProcessingComplete
	if meta.Timeout {
		processing = models.ProcessingFailed
	}
	post, err := s.createPost(ctx, viewer, in, generator, meta, processing, func(p *models.Post) {
		p.Image = &media
		p.Checksum = processed.Checksum
	})
	if err != nil {
		return CompleteOutput{}, err
	}

	out := s.commit(ctx, post, verdicts)
	out.Warning = joinWarnings(out.Warning, warnIf(meta.Timeout, metadataWarning), warnIf(!complete, incompleteWarning))

	if jobID, err := s.Jobs.Enqueue(ctx, jobs.Task{Type: jobs.TaskRename, PostID: post.ID}); err != nil {
		s.log.Warn().Err(err).Int64("post_id", post.ID).Msg("enqueue rename failed")
	} else {
		out.RenameJobID = jobID
	}
	return out, nil
}

// storeVariants writes every processed output next to the original. complete is false when
// any variant could not be written.
func (s *UploadService) storeVariants(ctx context.Context, key string, processed imageproc.Result) (models.ImageMedia, bool) {
	media := models.ImageMedia{Width: processed.Width, Height: processed.Height}
	complete := true
	for _, out := range processed.Outputs {
		target := storage.VariantKey(key, out.Variant, out.Ext)
		if err := s.Store.Put(ctx, target, out.Data, out.ContentType); err != nil {
			s.log.Error().Err(err).Str("key", target).Msg("store variant failed")
			complete = false
			continue
		}
		url := s.Store.PublicURL(target)
		switch out.Variant {
		case models.VariantOriginal:
			media.URL = url
		case models.VariantThumb:
			media.ThumbURL = url
		case models.VariantMedium:
			media.MediumURL = url
		case models.VariantLarge:
			media.LargeURL = url
		case models.VariantAlt:
			media.AltURL = url
		}
	}

	// the original is re-encoded as JPEG; drop the upload if it landed under another name
	if media.URL != "" && storage.VariantKey(key, models.VariantOriginal, "jpg") != key {
		s.discard(ctx, key)
	}
	if media.URL == "" {
		media.URL = s.Store.PublicURL(key)
	}
	return media, complete
}

func (s *UploadService) completeVideo(ctx context.Context, viewer models.Viewer, in CompleteInput, generator models.AIGenerator, session models.UploadSession, head storage.HeadResult) (CompleteOutput, error) {
	if err := s.Videos.Available(ctx); err != nil {
		s.discard(ctx, in.Key)
		return CompleteOutput{}, fmt.Errorf("%w: %v", ErrTranscoderUnavailable, err)
	}

	if head.Size > storage.MaxVideoPresignBytes {
		s.discard(ctx, in.Key)
		return CompleteOutput{}, invalidInput(fmt.Sprintf("File too large. Maximum size is %dMB.", storage.MaxVideoPresignBytes>>20))
	}
	contentType := session.ContentType
	if contentType == "" {
		contentType = head.ContentType
	}
	if err := s.Videos.Validate(path.Base(in.Key), contentType, head.Size); err != nil {
		s.discard(ctx, in.Key)
		var ve *videoproc.ValidationError
		if errors.As(err, &ve) {
			return CompleteOutput{}, invalidInput(ve.Reason)
		}
		return CompleteOutput{}, err
	}

	dir, err := os.MkdirTemp(s.cfg.TempDir, "upload-*")
	if err != nil {
		return CompleteOutput{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input"+path.Ext(in.Key))
	if err := s.Store.Download(ctx, in.Key, input); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return CompleteOutput{}, ErrNotFound
		}
		return CompleteOutput{}, err
	}

	meta, err := s.Videos.Probe(ctx, input)
	if err != nil {
		s.discard(ctx, in.Key)
		var ve *videoproc.ValidationError
		switch {
		case errors.As(err, &ve):
			return CompleteOutput{}, invalidInput(ve.Reason)
		case errors.Is(err, videoproc.ErrTimeout):
			return CompleteOutput{}, fmt.Errorf("%w: %v", ErrTranscoderUnavailable, err)
		default:
			return CompleteOutput{}, invalidInput("Could not read video file.")
		}
	}

	thumbKey := storage.VariantKey(in.Key, models.VariantThumb, "jpg")
	thumbURL := s.thumbnail(ctx, input, filepath.Join(dir, "thumb.jpg"), thumbKey, meta.Duration)

	verdicts := s.Moderator.Collect(ctx, moderation.Subject{
		Text:     moderation.CombinedText(in.Title, in.Prompt, in.Excerpt),
		Kind:     models.MediaVideo,
		MediaURL: input,
		Duration: meta.Duration,
		Fallback: thumbURL,
	})
	if err := s.gate(ctx, verdicts, in.Key); err != nil {
		if thumbURL != "" {
			s.discard(ctx, thumbKey)
		}
		return CompleteOutput{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = metadata.VideoTitle(truncate(in.Prompt, 50))
	}
	post, err := s.createPost(ctx, viewer, in, generator, metadata.Result{Title: title}, models.ProcessingGeneratingMetadata, func(p *models.Post) {
		p.Video = &models.VideoMedia{
			URL:      s.Store.PublicURL(in.Key),
			ThumbURL: thumbURL,
			Duration: meta.Duration,
			Width:    meta.Width,
			Height:   meta.Height,
		}
	})
	if err != nil {
		return CompleteOutput{}, err
	}

	out := s.commit(ctx, post, verdicts)

	jobID, err := s.Jobs.Enqueue(ctx, jobs.Task{Type: jobs.TaskVideoMetadata, PostID: post.ID})
	if err != nil {
		s.log.Warn().Err(err).Int64("post_id", post.ID).Msg("enqueue video metadata failed")
		if err := s.Posts.SetProcessingStatus(ctx, post.ID, models.ProcessingFailed); err != nil {
			s.log.Error().Err(err).Int64("post_id", post.ID).Msg("mark processing failed")
		}
	} else {
		out.JobID = jobID
	}
	return out, nil
}

// thumbnail renders and stores the poster frame, returning its URL or "" on failure.
func (s *UploadService) thumbnail(ctx context.Context, input, output, key string, duration float64) string {
	at := time.Second
	if half := time.Duration(duration / 2 * float64(time.Second)); half < at {
		at = half
	}
	if err := s.Videos.Thumbnail(ctx, input, output, videoproc.ThumbnailOptions{At: at}); err != nil {
		s.log.Warn().Err(err).Msg("thumbnail generation failed")
		return ""
	}
	data, err := os.ReadFile(output)
	if err != nil {
		s.log.Warn().Err(err).Msg("read thumbnail failed")
		return ""
	}
	if err := s.Store.Put(ctx, key, data, "image/jpeg"); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("store thumbnail failed")
		return ""
	}
	return s.Store.PublicURL(key)
}

// gate deletes the blob and fails when the verdicts block the upload.
func (s *UploadService) gate(ctx context.Context, verdicts []moderation.Verdict, key string) error {
	if moderation.Unreachable(verdicts) {
		s.discard(ctx, key)
		return ErrModerationUnavailable
	}
	outcome := moderation.Aggregate(verdicts)
	if outcome.Status == models.ModerationRejected {
		s.discard(ctx, key)
		s.log.Info().Str("key", key).Strs("categories", outcome.Categories).Str("severity", string(outcome.Severity)).Msg("upload rejected by moderation")
		return &RejectedError{Categories: moderation.CategoryFamily(outcome.Categories), Severity: outcome.Severity}
	}
	return nil
}

func (s *UploadService) createPost(ctx context.Context, viewer models.Viewer, in CompleteInput, generator models.AIGenerator, meta metadata.Result, processing models.ProcessingStatus, media func(*models.Post)) (models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = meta.Title
	}
	tags := in.Tags
	if len(tags) == 0 {
		tags = meta.SuggestedTags
	}
	excerpt := strings.TrimSpace(in.Excerpt)
	if excerpt == "" {
		excerpt = truncate(meta.Description, 300)
	}

	post := models.Post{
		Slug:             metadata.SlugBase(title),
		ProcessingUUID:   uuid.New(),
		AuthorID:         viewer.ID,
		Title:            title,
		Content:          strings.TrimSpace(in.Prompt),
		Excerpt:          excerpt,
		AIGenerator:      generator.Name,
		Tags:             tags,
		ProcessingStatus: processing,
		SEOFilename:      meta.SEOFilename,
		AltText:          meta.AltTag,
		AIDescription:    meta.Description,
	}
	media(&post)

	created, err := s.Posts.Create(ctx, post)
	if err != nil {
		if errors.Is(err, repository.ErrTooManyTags) {
			return models.Post{}, invalidInput(fmt.Sprintf("At most %d tags are allowed.", models.MaxTagsPerPost))
		}
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	return created, nil
}

// commit stores the gate verdicts against the new post. A failed commit leaves the post
// pending for the hourly bulk run instead of failing the upload.
func (s *UploadService) commit(ctx context.Context, post models.Post, verdicts []moderation.Verdict) CompleteOutput {
	out := CompleteOutput{
		PostID:           post.ID,
		Slug:             post.Slug,
		Status:           post.Status,
		ModerationStatus: post.ModerationStatus,
	}
	res, err := s.Moderator.Commit(ctx, post, verdicts)
	if err != nil {
		s.log.Error().Err(err).Int64("post_id", post.ID).Msg("commit moderation failed")
		out.RequiresManualReview = true
		out.Warning = reviewWarning
		return out
	}
	out.Status = res.Post.Status
	out.ModerationStatus = res.Post.ModerationStatus
	out.RequiresManualReview = res.Post.RequiresManualReview
	if res.Outcome.RequiresReview {
		out.Warning = reviewWarning
	}
	return out
}

// CheckImage runs the vision gate on an image the client already uploaded.
func (s *UploadService) CheckImage(ctx context.Context, imageURL string) (ImageCheck, error) {
	if !s.Store.AllowedHost(imageURL) {
		return ImageCheck{}, invalidInput("Invalid image URL.")
	}
	res := s.Vision.ModerateImage(ctx, imageURL)
	if res.Err != nil {
		return ImageCheck{
			IsSafe:      false,
			Status:      models.ModerationRejected,
			Categories:  []string{"moderation_error"},
			Severity:    models.SeverityCritical,
			Confidence:  1,
			Explanation: moderationFailed,
			Timeout:     res.Timeout,
		}, nil
	}
	categories := res.Categories
	if categories == nil {
		categories = []string{}
	}
	return ImageCheck{
		IsSafe:      res.Safe,
		Status:      res.Status,
		Categories:  categories,
		Severity:    res.Severity,
		Confidence:  res.Confidence,
		Explanation: res.Explanation,
	}, nil
}

// DeleteUpload removes a blob from the caller's pending upload.
func (s *UploadService) DeleteUpload(ctx context.Context, viewer models.Viewer, key string, isVideo bool) error {
	session, err := s.Sessions.Get(ctx, viewer.ID)
	owned := err == nil && session.Key == key
	if !owned && !viewer.Staff {
		return ErrNotFound
	}

	if err := s.Store.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if isVideo {
		s.discard(ctx, storage.VariantKey(key, models.VariantThumb, "jpg"))
	}
	if owned {
		if err := s.Sessions.Delete(ctx, viewer.ID); err != nil {
			s.log.Warn().Err(err).Msg("clear upload session failed")
		}
	}
	return nil
}

// Cancel drops the caller's session and its blob. Cancelling nothing succeeds.
func (s *UploadService) Cancel(ctx context.Context, viewer models.Viewer) error {
	session, err := s.Sessions.Get(ctx, viewer.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.discard(ctx, session.Key)
	return s.Sessions.Delete(ctx, viewer.ID)
}

func (s *UploadService) Extend(ctx context.Context, viewer models.Viewer) (models.UploadSession, error) {
	return s.Sessions.Extend(ctx, viewer.ID, s.cfg.ExtensionWindow, s.now().UTC())
}

func (s *UploadService) Suggestions(ctx context.Context, in SuggestionInput) (metadata.Result, error) {
	if !s.Store.AllowedHost(in.ImageURL) {
		return metadata.Result{}, invalidInput("Invalid image URL.")
	}
	generator := in.AIGenerator
	if g, ok := models.LookupGenerator(generator); ok {
		generator = g.Name
	}
	res := s.Metadata.Generate(ctx, metadata.Request{
		ImageURL:   in.ImageURL,
		PromptText: in.Prompt,
		Generator:  generator,
	})
	if res.Timeout {
		return res, ErrMetadataTimeout
	}
	return res, nil
}

func (s *UploadService) JobStatus(ctx context.Context, jobID string) (models.JobRecord, error) {
	rec, err := s.Jobs.Status(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		return models.JobRecord{}, ErrNotFound
	}
	return rec, err
}

// GenerateVideoMetadata fills in text-derived metadata for a video post and queues its rename.
func (s *UploadService) GenerateVideoMetadata(ctx context.Context, postID int64) (map[string]any, error) {
	post, err := s.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	// retries start over from generating_metadata so the final write is a valid move
	if post.ProcessingStatus != models.ProcessingGeneratingMetadata {
		if err := s.Posts.SetProcessingStatus(ctx, postID, models.ProcessingGeneratingMetadata); err != nil {
			return nil, fmt.Errorf("start metadata generation: %w", err)
		}
	}

	res := s.Metadata.GenerateFromText(ctx, post.Content, post.AIGenerator)
	status := models.ProcessingComplete
	if res.Timeout {
		status = models.ProcessingFailed
	}

	update := repository.MetadataUpdate{
		Title:            post.Title,
		Excerpt:          res.Description,
		Description:      res.Description,
		Tags:             res.SuggestedTags,
		SEOFilename:      res.SEOFilename,
		AltText:          res.AltTag,
		ProcessingStatus: status,
	}
	if post.Title == "" || post.Title == metadata.VideoTitle(truncate(post.Content, 50)) {
		update.Title = res.Title
		update.Slug = metadata.SlugBase(res.Title)
	}

	updated, err := s.Posts.UpdateMetadata(ctx, postID, update)
	if err != nil {
		if markErr := s.Posts.SetProcessingStatus(ctx, postID, models.ProcessingFailed); markErr != nil {
			s.log.Error().Err(markErr).Int64("post_id", postID).Msg("mark processing failed")
		}
		return nil, err
	}

	result := map[string]any{
		"post_id":      updated.ID,
		"title":        updated.Title,
		"slug":         updated.Slug,
		"description":  res.Description,
		"tags":         updated.Tags,
		"seo_filename": updated.SEOFilename,
		"timeout":      res.Timeout,
	}
	if jobID, err := s.Jobs.Enqueue(ctx, jobs.Task{Type: jobs.TaskRename, PostID: postID}); err != nil {
		s.log.Warn().Err(err).Int64("post_id", postID).Msg("enqueue rename failed")
	} else {
		result["rename_job_id"] = jobID
	}
	return result, nil
}

// SweepSessions deletes blobs of uploads whose session ran out without completion.
func (s *UploadService) SweepSessions(ctx context.Context) (int, error) {
	expired, err := s.Sessions.Expired(ctx, s.now().UTC(), 100)
	if err != nil {
		return 0, err
	}
	for _, session := range expired {
		s.discard(ctx, session.Key)
		if err := s.Sessions.Delete(ctx, session.UserID); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Msg("expired upload sessions swept")
	}
	return len(expired), nil
}

// discard deletes key, ignoring a missing object.
func (s *UploadService) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn().Err(err).Str("key", key).Msg("delete blob failed")
	}
}

func resultLabel(err error) string {
	var ie *InputError
	var re *RejectedError
	switch {
	case errors.As(err, &re):
		return "rejected"
	case errors.As(err, &ie):
		return "invalid"
	case errors.Is(err, ErrModerationUnavailable), errors.Is(err, ErrTranscoderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "missing"
	default:
		return "error"
	}
}

func warnIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

func joinWarnings(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
