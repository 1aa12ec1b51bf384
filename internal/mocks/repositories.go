package mocks

import (
	"context"
	"sync"
	"time"

	"promptfinder/internal/models"
	"promptfinder/internal/repository"
	"promptfinder/internal/service"
)

var _ service.PostStore = (*MockPostStore)(nil)

// MockPostStore is a mock implementation of PostStore
type MockPostStore struct {
	mu     sync.Mutex
	Posts  map[int64]*models.Post
	nextID int64

	CreateErr     error
	UpdateURLsErr error
	RecentCount   int
	CountErr      error
	HardDeleted   []int64
}

func NewMockPostStore() *MockPostStore {
	return &MockPostStore{Posts: make(map[int64]*models.Post)}
}

// Add stores post as-is and returns its id.
func (m *MockPostStore) Add(post models.Post) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if post.ID == 0 {
		m.nextID++
		post.ID = m.nextID
	}
	m.Posts[post.ID] = &post
	return post.ID
}

func (m *MockPostStore) Get(id int64) models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Posts[id]; ok {
		return *p
	}
	return models.Post{}
}

func (m *MockPostStore) Create(ctx context.Context, post models.Post) (models.Post, error) {
	if m.CreateErr != nil {
		return models.Post{}, m.CreateErr
	}
	if len(post.Tags) > models.MaxTagsPerPost {
		return models.Post{}, repository.ErrTooManyTags
	}
	post.Status = models.PostStatusDraft
	post.ModerationStatus = models.ModerationPending
	post.CreatedAt = time.Now()
	id := m.Add(post)
	return m.Get(id), nil
}

func (m *MockPostStore) GetByID(ctx context.Context, id int64) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok {
		return models.Post{}, repository.ErrPostNotFound
	}
	return *p, nil
}

func (m *MockPostStore) UpdateContent(ctx context.Context, id int64, edit repository.PostEdit) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok || p.DeletedAt != nil {
		return models.Post{}, repository.ErrPostNotFound
	}
	if len(edit.Tags) > models.MaxTagsPerPost {
		return models.Post{}, repository.ErrTooManyTags
	}
	if edit.Title != nil {
		p.Title = *edit.Title
	}
	if edit.Content != nil {
		p.Content = *edit.Content
	}
	if edit.Excerpt != nil {
		p.Excerpt = *edit.Excerpt
	}
	if edit.Tags != nil {
		p.Tags = edit.Tags
	}
	return *p, nil
}

func (m *MockPostStore) UpdateMetadata(ctx context.Context, id int64, u repository.MetadataUpdate) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok {
		return models.Post{}, repository.ErrPostNotFound
	}
	if !canMove(p.ProcessingStatus, u.ProcessingStatus) {
		return models.Post{}, repository.ErrInvalidTransition
	}
	if u.Title != "" {
		p.Title = u.Title
	}
	if u.Slug != "" {
		p.Slug = u.Slug
	}
	if p.Excerpt == "" {
		p.Excerpt = u.Excerpt
	}
	if len(p.Tags) == 0 {
		p.Tags = u.Tags
	}
	p.AIDescription = u.Description
	if p.SEOFilename == "" {
		p.SEOFilename = u.SEOFilename
	}
	p.AltText = u.AltText
	p.ProcessingStatus = u.ProcessingStatus
	return *p, nil
}

func canMove(from, to models.ProcessingStatus) bool {
	if from == "" {
		from = models.ProcessingIdle
	}
	return from == to || from.CanTransition(to)
}

func (m *MockPostStore) SetProcessingStatus(ctx context.Context, id int64, status models.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok {
		return repository.ErrPostNotFound
	}
	if !canMove(p.ProcessingStatus, status) {
		return repository.ErrInvalidTransition
	}
	p.ProcessingStatus = status
	return nil
}

func (m *MockPostStore) SetSEOFilename(ctx context.Context, id int64, filename string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok {
		return "", repository.ErrPostNotFound
	}
	if p.SEOFilename == "" {
		p.SEOFilename = filename
	}
	return p.SEOFilename, nil
}

func (m *MockPostStore) UpdateMediaURLs(ctx context.Context, id int64, urls map[string]string) (models.Post, error) {
	if m.UpdateURLsErr != nil {
		return models.Post{}, m.UpdateURLsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok {
		return models.Post{}, repository.ErrPostNotFound
	}
	updated := p.WithMediaURLs(urls)
	m.Posts[id] = &updated
	return updated, nil
}

func (m *MockPostStore) SoftDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok || p.DeletedAt != nil {
		return repository.ErrPostNotFound
	}
	now := time.Now()
	p.DeletedAt = &now
	return nil
}

func (m *MockPostStore) Restore(ctx context.Context, id int64) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Posts[id]
	if !ok || p.DeletedAt == nil {
		return models.Post{}, repository.ErrPostNotFound
	}
	p.DeletedAt = nil
	return *p, nil
}

func (m *MockPostStore) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Post
	for _, p := range m.Posts {
		if p.DeletedAt != nil && p.DeletedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MockPostStore) HardDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Posts[id]; !ok {
		return repository.ErrPostNotFound
	}
	delete(m.Posts, id)
	m.HardDeleted = append(m.HardDeleted, id)
	return nil
}

func (m *MockPostStore) CountRecentByAuthor(ctx context.Context, authorID string, since time.Time) (int, error) {
	return m.RecentCount, m.CountErr
}

var _ service.TagCatalog = (*MockTagCatalog)(nil)

// MockTagCatalog is a mock implementation of TagCatalog
type MockTagCatalog struct {
	Tags  []string
	Err   error
	Calls int
}

func (m *MockTagCatalog) Names(ctx context.Context) ([]string, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tags, nil
}
