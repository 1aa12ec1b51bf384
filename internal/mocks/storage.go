package mocks

import (
	"context"
	"os"
	"strings"
	"sync"

	"promptfinder/internal/service"
	"promptfinder/internal/storage"
)

const CDNBase = "https://cdn.test/"

var _ service.ObjectStore = (*MockObjectStore)(nil)

// MockObjectStore is an in-memory object store
type MockObjectStore struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
	Presigned    storage.Presigned
	PresignErr   error
	CopyErr      map[string]error // keyed by source key
	PutErr       map[string]error
	DeleteErr    map[string]error
	Deleted      []string
}

func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		Objects:      make(map[string][]byte),
		ContentTypes: make(map[string]string),
		CopyErr:      make(map[string]error),
		PutErr:       make(map[string]error),
		DeleteErr:    make(map[string]error),
	}
}

func (m *MockObjectStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Objects[key]
	return ok
}

func (m *MockObjectStore) PresignPut(ctx context.Context, contentType string, contentLength int64, suggestedName string) (storage.Presigned, error) {
	if m.PresignErr != nil {
		return storage.Presigned{}, m.PresignErr
	}
	return m.Presigned, nil
}

func (m *MockObjectStore) Head(ctx context.Context, key string) (storage.HeadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[key]
	if !ok {
		return storage.HeadResult{}, storage.ErrNotFound
	}
	return storage.HeadResult{Exists: true, Size: int64(len(data)), ContentType: m.ContentTypes[key]}, nil
}

func (m *MockObjectStore) Get(ctx context.Context, key string, limit int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, storage.ErrTooLarge
	}
	return data, nil
}

func (m *MockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PutErr[key]; err != nil {
		return err
	}
	m.Objects[key] = data
	m.ContentTypes[key] = contentType
	return nil
}

func (m *MockObjectStore) Download(ctx context.Context, key, filePath string) error {
	m.mu.Lock()
	data, ok := m.Objects[key]
	m.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}
	return os.WriteFile(filePath, data, 0o600)
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DeleteErr[key]; err != nil {
		return err
	}
	if _, ok := m.Objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.Objects, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

func (m *MockObjectStore) CopyVerified(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.CopyErr[src]; err != nil {
		return err
	}
	data, ok := m.Objects[src]
	if !ok {
		return storage.ErrNotFound
	}
	m.Objects[dst] = data
	m.ContentTypes[dst] = m.ContentTypes[src]
	return nil
}

func (m *MockObjectStore) PublicURL(key string) string {
	return CDNBase + key
}

func (m *MockObjectStore) KeyFromURL(raw string) (string, bool) {
	key, ok := strings.CutPrefix(raw, CDNBase)
	return key, ok && key != ""
}

func (m *MockObjectStore) AllowedHost(raw string) bool {
	return strings.HasPrefix(raw, CDNBase)
}
