package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"promptfinder/internal/jobs"
	"promptfinder/internal/media/imageproc"
	"promptfinder/internal/media/videoproc"
	"promptfinder/internal/metadata"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
	"promptfinder/internal/moderation/vision"
	"promptfinder/internal/repository"
	"promptfinder/internal/storage"
)

// Uploads is what the upload handlers call.
type Uploads interface {
	Presign(ctx context.Context, viewer models.Viewer, in PresignInput) (PresignOutput, error)
	Complete(ctx context.Context, viewer models.Viewer, in CompleteInput) (CompleteOutput, error)
	CheckImage(ctx context.Context, imageURL string) (ImageCheck, error)
	DeleteUpload(ctx context.Context, viewer models.Viewer, key string, isVideo bool) error
	Cancel(ctx context.Context, viewer models.Viewer) error
	Extend(ctx context.Context, viewer models.Viewer) (models.UploadSession, error)
	Suggestions(ctx context.Context, in SuggestionInput) (metadata.Result, error)
	JobStatus(ctx context.Context, jobID string) (models.JobRecord, error)
}

// Posts is what the post handlers call.
type Posts interface {
	Get(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error)
	Edit(ctx context.Context, viewer models.Viewer, id int64, edit repository.PostEdit) (models.Post, error)
	Delete(ctx context.Context, viewer models.Viewer, id int64) error
	Restore(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error)
}

type ObjectStore interface {
	PresignPut(ctx context.Context, contentType string, contentLength int64, suggestedName string) (storage.Presigned, error)
	Head(ctx context.Context, key string) (storage.HeadResult, error)
	Get(ctx context.Context, key string, limit int64) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key, filePath string) error
	Delete(ctx context.Context, key string) error
	CopyVerified(ctx context.Context, src, dst string) error
	PublicURL(key string) string
	KeyFromURL(raw string) (string, bool)
	AllowedHost(raw string) bool
}

type PostStore interface {
	Create(ctx context.Context, post models.Post) (models.Post, error)
	GetByID(ctx context.Context, id int64) (models.Post, error)
	UpdateContent(ctx context.Context, id int64, edit repository.PostEdit) (models.Post, error)
	UpdateMetadata(ctx context.Context, id int64, u repository.MetadataUpdate) (models.Post, error)
	SetProcessingStatus(ctx context.Context, id int64, status models.ProcessingStatus) error
	SetSEOFilename(ctx context.Context, id int64, filename string) (string, error)
	UpdateMediaURLs(ctx context.Context, id int64, urls map[string]string) (models.Post, error)
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) (models.Post, error)
	ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Post, error)
	HardDelete(ctx context.Context, id int64) error
	CountRecentByAuthor(ctx context.Context, authorID string, since time.Time) (int, error)
}

// TagCatalog is the shared tag vocabulary user tags are checked against.
type TagCatalog interface {
	Names(ctx context.Context) ([]string, error)
}

type Moderator interface {
	Collect(ctx context.Context, subject moderation.Subject) []moderation.Verdict
	Commit(ctx context.Context, post models.Post, verdicts []moderation.Verdict) (moderation.Result, error)
	Moderate(ctx context.Context, postID int64, force bool) (moderation.Result, error)
}

type ImageModerator interface {
	ModerateImage(ctx context.Context, url string) vision.Result
}

type MetadataGenerator interface {
	Generate(ctx context.Context, req metadata.Request) metadata.Result
	GenerateFromText(ctx context.Context, prompt, generator string) metadata.Result
}

type ImageProcessor interface {
	Process(data []byte) (imageproc.Result, error)
}

type VideoProcessor interface {
	Validate(name, mime string, size int64) error
	Available(ctx context.Context) error
	Probe(ctx context.Context, path string) (videoproc.Metadata, error)
	Thumbnail(ctx context.Context, input, output string, opts videoproc.ThumbnailOptions) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, task jobs.Task) (string, error)
	Status(ctx context.Context, id string) (models.JobRecord, error)
}

// InputError is a client mistake; Message is safe to return.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func invalidInput(message string) error {
	return &InputError{Message: message}
}

// RejectedError is returned when the safety gate blocks an upload.
type RejectedError struct {
	Categories []string
	Severity   models.Severity
}

func (e *RejectedError) Error() string {
	if len(e.Categories) == 0 {
		return "Content rejected by moderation."
	}
	return "Content rejected by moderation: " + strings.Join(e.Categories, ", ")
}

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrQuotaExceeded         = errors.New("weekly upload limit reached")
	ErrSessionNotFound       = errors.New("no active upload session")
	ErrSessionExpired        = errors.New("upload session expired")
	ErrAlreadyExtended       = errors.New("upload session already extended")
	ErrModerationUnavailable = errors.New("moderation service temporarily unavailable")
	ErrTranscoderUnavailable = errors.New("video processing temporarily unavailable")
	ErrMetadataTimeout       = errors.New("metadata generation timed out")
)
