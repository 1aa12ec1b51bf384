package models

import "time"

type UploadSession struct {
	UserID      string    `json:"user_id"`
	Key         string    `json:"key"`
	Kind        MediaKind `json:"kind"`
	ContentType string    `json:"content_type"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Extended    bool      `json:"extended"`
}

func (s UploadSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// JobRecord is the cache-resident status a client polls.
type JobRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    JobStatus      `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}
