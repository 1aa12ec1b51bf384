package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
	ModerationFlagged  ModerationStatus = "flagged"
)

// Publishable reports whether a post in this moderation state may carry status=published.
func (s ModerationStatus) Publishable() bool {
	return s == ModerationApproved || s == ModerationFlagged
}

type ProcessingStatus string

const (
	ProcessingIdle               ProcessingStatus = "idle"
	ProcessingGeneratingMetadata ProcessingStatus = "generating_metadata"
	ProcessingComplete           ProcessingStatus = "complete"
	ProcessingFailed             ProcessingStatus = "failed"
)

var processingTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingIdle:               {ProcessingGeneratingMetadata, ProcessingComplete, ProcessingFailed},
	ProcessingGeneratingMetadata: {ProcessingComplete, ProcessingFailed},
	ProcessingFailed:             {ProcessingGeneratingMetadata},
	ProcessingComplete:           {ProcessingGeneratingMetadata},
}

func (s ProcessingStatus) CanTransition(to ProcessingStatus) bool {
	for _, next := range processingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ProcessingSources lists the states a post may be in when moving to `to`. Re-entering the
// same state is allowed so retried writes stay idempotent.
func ProcessingSources(to ProcessingStatus) []ProcessingStatus {
	sources := []ProcessingStatus{to}
	for from := range processingTransitions {
		if from != to && from.CanTransition(to) {
			sources = append(sources, from)
		}
	}
	slices.Sort(sources[1:])
	return sources
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

const MaxTagsPerPost = 7

type ImageMedia struct {
	URL       string
	ThumbURL  string
	MediumURL string
	LargeURL  string
	AltURL    string
	Width     int
	Height    int
}

// Complete reports whether every expected variant was produced.
func (m ImageMedia) Complete() bool {
	return m.URL != "" && m.ThumbURL != "" && m.MediumURL != "" && m.LargeURL != "" && m.AltURL != ""
}

type VideoMedia struct {
	URL      string
	ThumbURL string
	Duration float64
	Width    int
	Height   int
}

func (m VideoMedia) Complete() bool {
	return m.URL != "" && m.ThumbURL != ""
}

type Post struct {
	ID             int64
	Slug           string
	ProcessingUUID uuid.UUID
	AuthorID       string

	Title       string
	Content     string
	Excerpt     string
	AIGenerator string
	Tags        []string

	Image *ImageMedia
	Video *VideoMedia

	Status    PostStatus
	DeletedAt *time.Time

	ModerationStatus      ModerationStatus
	RequiresManualReview  bool
	ModerationCompletedAt *time.Time

	ProcessingStatus ProcessingStatus

	SEOFilename   string
	AltText       string
	AIDescription string
	Checksum      []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Post) MediaKind() MediaKind {
	if p.Video != nil {
		return MediaVideo
	}
	return MediaImage
}

func (p Post) HasMedia() bool {
	return (p.Image != nil && p.Image.URL != "") || (p.Video != nil && p.Video.URL != "")
}

// MediaComplete enforces the one-media-group rule and variant completeness.
func (p Post) MediaComplete() bool {
	switch {
	case p.Image != nil && p.Video != nil:
		return false
	case p.Image != nil:
		return p.Image.Complete()
	case p.Video != nil:
		return p.Video.Complete()
	default:
		return false
	}
}

func (p Post) Live() bool {
	return p.DeletedAt == nil
}

// VisibleTo applies the public visibility rule. Authors and staff see everything they own or moderate.
func (p Post) VisibleTo(viewer Viewer) bool {
	if viewer.Staff || (viewer.ID != "" && viewer.ID == p.AuthorID) {
		return true
	}
	return p.Status == PostStatusPublished && p.Live() && p.ModerationStatus.Publishable()
}

// MediaURLs lists every object-store URL the post owns, keyed by variant name.
func (p Post) MediaURLs() map[string]string {
	urls := make(map[string]string)
	add := func(name, url string) {
		if url != "" {
			urls[name] = url
		}
	}
	if p.Image != nil {
		add(VariantOriginal, p.Image.URL)
		add(VariantThumb, p.Image.ThumbURL)
		add(VariantMedium, p.Image.MediumURL)
		add(VariantLarge, p.Image.LargeURL)
		add(VariantAlt, p.Image.AltURL)
	}
	if p.Video != nil {
		add(VariantOriginal, p.Video.URL)
		add(VariantThumb, p.Video.ThumbURL)
	}
	return urls
}

const (
	VariantOriginal = "original"
	VariantThumb    = "thumb"
	VariantMedium   = "medium"
	VariantLarge    = "large"
	VariantAlt      = "alt"
)

// WithMediaURLs returns a copy of the post whose media URLs are replaced by the given variant map.
func (p Post) WithMediaURLs(urls map[string]string) Post {
	pick := func(name, current string) string {
		if u, ok := urls[name]; ok {
			return u
		}
		return current
	}
	if p.Image != nil {
		img := *p.Image
		img.URL = pick(VariantOriginal, img.URL)
		img.ThumbURL = pick(VariantThumb, img.ThumbURL)
		img.MediumURL = pick(VariantMedium, img.MediumURL)
		img.LargeURL = pick(VariantLarge, img.LargeURL)
		img.AltURL = pick(VariantAlt, img.AltURL)
		p.Image = &img
	}
	if p.Video != nil {
		vid := *p.Video
		vid.URL = pick(VariantOriginal, vid.URL)
		vid.ThumbURL = pick(VariantThumb, vid.ThumbURL)
		p.Video = &vid
	}
	return p
}
