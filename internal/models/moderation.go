package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func (s Severity) Rank() int {
	return severityRank[s]
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type ModerationService string

const (
	ServiceLexical ModerationService = "lexical"
	ServiceText    ModerationService = "text"
	ServiceVision  ModerationService = "vision"
)

type ModerationLog struct {
	ID          int64
	PostID      int64
	Service     ModerationService
	Status      ModerationStatus
	Confidence  float64
	Severity    Severity
	Categories  []string
	Explanation string
	RawResponse []byte
	Notes       string
	Flags       []ContentFlag
	CreatedAt   time.Time
}

type ContentFlag struct {
	ID              int64
	ModerationLogID int64
	Category        string
	Confidence      float64
	Severity        Severity
	Detail          []byte
}

type ProfanityEntry struct {
	ID       int64
	Word     string
	Severity Severity
	Active   bool
}

// ModerationUpdate is the post-side result of one moderation run.
type ModerationUpdate struct {
	Status         ModerationStatus
	RequiresReview bool
	CompletedAt    time.Time
	PostStatus     PostStatus
}
