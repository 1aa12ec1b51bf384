package mocks

import (
	"context"
	"os"
	"sync"

	"promptfinder/internal/jobs"
	"promptfinder/internal/media/imageproc"
	"promptfinder/internal/media/videoproc"
	"promptfinder/internal/metadata"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
	"promptfinder/internal/moderation/vision"
	"promptfinder/internal/repository"
	"promptfinder/internal/service"
)

var (
	_ service.Moderator         = (*MockModerator)(nil)
	_ service.ImageModerator    = (*MockImageModerator)(nil)
	_ service.MetadataGenerator = (*MockMetadataGenerator)(nil)
	_ service.ImageProcessor    = (*MockImageProcessor)(nil)
	_ service.VideoProcessor    = (*MockVideoProcessor)(nil)
	_ service.JobQueue          = (*MockJobQueue)(nil)
	_ service.Uploads           = (*MockUploads)(nil)
	_ service.Posts             = (*MockPosts)(nil)
)

// MockModerator returns canned verdicts and applies them to the post store on commit.
type MockModerator struct {
	Verdicts  []moderation.Verdict
	Subjects  []moderation.Subject
	CommitErr error
	Posts     *MockPostStore
	Moderated []int64
}

func (m *MockModerator) Collect(ctx context.Context, subject moderation.Subject) []moderation.Verdict {
	m.Subjects = append(m.Subjects, subject)
	return m.Verdicts
}

func (m *MockModerator) Commit(ctx context.Context, post models.Post, verdicts []moderation.Verdict) (moderation.Result, error) {
	if m.CommitErr != nil {
		return moderation.Result{}, m.CommitErr
	}
	outcome := moderation.Aggregate(verdicts)
	post.ModerationStatus = outcome.Status
	post.RequiresManualReview = outcome.RequiresReview
	if outcome.Status == models.ModerationApproved && post.MediaComplete() {
		post.Status = models.PostStatusPublished
	} else {
		post.Status = models.PostStatusDraft
	}
	if m.Posts != nil {
		m.Posts.Add(post)
	}
	return moderation.Result{Post: post, Outcome: outcome}, nil
}

func (m *MockModerator) Moderate(ctx context.Context, postID int64, force bool) (moderation.Result, error) {
	m.Moderated = append(m.Moderated, postID)
	if m.Posts == nil {
		return moderation.Result{}, nil
	}
	return m.Commit(ctx, m.Posts.Get(postID), m.Verdicts)
}

type MockImageModerator struct {
	Result vision.Result
	URLs   []string
}

func (m *MockImageModerator) ModerateImage(ctx context.Context, url string) vision.Result {
	m.URLs = append(m.URLs, url)
	return m.Result
}

type MockMetadataGenerator struct {
	Result   metadata.Result
	Requests []metadata.Request
	Prompts  []string
}

func (m *MockMetadataGenerator) Generate(ctx context.Context, req metadata.Request) metadata.Result {
	m.Requests = append(m.Requests, req)
	return m.Result
}

func (m *MockMetadataGenerator) GenerateFromText(ctx context.Context, prompt, generator string) metadata.Result {
	m.Prompts = append(m.Prompts, prompt)
	return m.Result
}

type MockImageProcessor struct {
	Result imageproc.Result
	Err    error
}

func (m *MockImageProcessor) Process(data []byte) (imageproc.Result, error) {
	return m.Result, m.Err
}

// MockVideoProcessor writes ThumbData to the requested output path.
type MockVideoProcessor struct {
	AvailableErr error
	ValidateErr  error
	Meta         videoproc.Metadata
	ProbeErr     error
	ThumbData    []byte
	ThumbErr     error
}

func (m *MockVideoProcessor) Validate(name, mime string, size int64) error {
	return m.ValidateErr
}

func (m *MockVideoProcessor) Available(ctx context.Context) error {
	return m.AvailableErr
}

func (m *MockVideoProcessor) Probe(ctx context.Context, path string) (videoproc.Metadata, error) {
	return m.Meta, m.ProbeErr
}

func (m *MockVideoProcessor) Thumbnail(ctx context.Context, input, output string, opts videoproc.ThumbnailOptions) error {
	if m.ThumbErr != nil {
		return m.ThumbErr
	}
	return os.WriteFile(output, m.ThumbData, 0o600)
}

type MockJobQueue struct {
	mu         sync.Mutex
	Tasks      []jobs.Task
	EnqueueErr error
	Records    map[string]models.JobRecord
}

func (m *MockJobQueue) Enqueue(ctx context.Context, task jobs.Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return "", m.EnqueueErr
	}
	m.Tasks = append(m.Tasks, task)
	return "job-" + task.Type, nil
}

func (m *MockJobQueue) Status(ctx context.Context, id string) (models.JobRecord, error) {
	rec, ok := m.Records[id]
	if !ok {
		return models.JobRecord{}, jobs.ErrJobNotFound
	}
	return rec, nil
}

// MockUploads records the last call and returns the configured values.
type MockUploads struct {
	PresignOut    service.PresignOutput
	CompleteOut   service.CompleteOutput
	Check         service.ImageCheck
	Session       models.UploadSession
	Suggestion    metadata.Result
	Job           models.JobRecord
	Err           error
	LastViewer    models.Viewer
	LastPresign   service.PresignInput
	LastComplete  service.CompleteInput
	LastDeleteKey string
}

func (m *MockUploads) Presign(ctx context.Context, viewer models.Viewer, in service.PresignInput) (service.PresignOutput, error) {
	m.LastViewer, m.LastPresign = viewer, in
	return m.PresignOut, m.Err
}

func (m *MockUploads) Complete(ctx context.Context, viewer models.Viewer, in service.CompleteInput) (service.CompleteOutput, error) {
	m.LastViewer, m.LastComplete = viewer, in
	return m.CompleteOut, m.Err
}

func (m *MockUploads) CheckImage(ctx context.Context, imageURL string) (service.ImageCheck, error) {
	return m.Check, m.Err
}

func (m *MockUploads) DeleteUpload(ctx context.Context, viewer models.Viewer, key string, isVideo bool) error {
	m.LastViewer, m.LastDeleteKey = viewer, key
	return m.Err
}

func (m *MockUploads) Cancel(ctx context.Context, viewer models.Viewer) error {
	m.LastViewer = viewer
	return m.Err
}

func (m *MockUploads) Extend(ctx context.Context, viewer models.Viewer) (models.UploadSession, error) {
	m.LastViewer = viewer
	return m.Session, m.Err
}

func (m *MockUploads) Suggestions(ctx context.Context, in service.SuggestionInput) (metadata.Result, error) {
	return m.Suggestion, m.Err
}

func (m *MockUploads) JobStatus(ctx context.Context, jobID string) (models.JobRecord, error) {
	return m.Job, m.Err
}

type MockPosts struct {
	Post     models.Post
	Err      error
	LastEdit repository.PostEdit
}

func (m *MockPosts) Get(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error) {
	return m.Post, m.Err
}

func (m *MockPosts) Edit(ctx context.Context, viewer models.Viewer, id int64, edit repository.PostEdit) (models.Post, error) {
	m.LastEdit = edit
	return m.Post, m.Err
}

func (m *MockPosts) Delete(ctx context.Context, viewer models.Viewer, id int64) error {
	return m.Err
}

func (m *MockPosts) Restore(ctx context.Context, viewer models.Viewer, id int64) (models.Post, error) {
	return m.Post, m.Err
}
