package vision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

const Rubric = `You are a content moderator for an AI art prompt sharing community.
Analyse the image and answer with JSON only, in exactly this shape:
{"flagged": bool, "categories": [string], "severity": "low"|"medium"|"high"|"critical", "explanation": string}

Severity rules:
- critical: explicit nudity showing genitals, sexual acts, or extreme gore. Block.
- high: actual nudity that is not explicit, or significant violence. Allow with a warning.
- medium: suggestive but clothed content. Allow.
- low: minor concerns. Allow.

Set "flagged" to false and "categories" to [] when nothing applies.
Artistic style does not change the rating.`

const userInstruction = "Moderate this image according to the rules."

// RefusalPhrases mark a model that declined to look at the content.
var RefusalPhrases = []string{
	"cannot assist",
	"can't assist",
	"unable to assist",
	"cannot help with",
	"can't help with",
	"against guidelines",
	"against my guidelines",
	"against the guidelines",
	"can't analyze",
	"cannot analyze",
	"unable to analyze",
	"can't analyse",
	"cannot analyse",
	"i'm sorry",
	"i am sorry",
	"not able to provide",
}

// Statuses maps a flagged severity onto the verdict status.
var Statuses = map[models.Severity]models.ModerationStatus{
	models.SeverityCritical: models.ModerationRejected,
	models.SeverityHigh:     models.ModerationFlagged,
	models.SeverityMedium:   models.ModerationApproved,
	models.SeverityLow:      models.ModerationApproved,
}

// Confidences derives confidence from severity.
var Confidences = map[models.Severity]float64{
	models.SeverityCritical: 1.0,
	models.SeverityHigh:     0.85,
	models.SeverityMedium:   0.65,
	models.SeverityLow:      0.4,
}

type Result struct {
	Safe        bool
	Status      models.ModerationStatus
	Categories  []string
	Severity    models.Severity
	Confidence  float64
	Explanation string
	Raw         string
	Timeout     bool
	Err         error
}

type Chatter interface {
	Chat(ctx context.Context, req ai.ChatRequest) (string, error)
}

type FrameSource interface {
	Frame(ctx context.Context, input string, at time.Duration) ([]byte, error)
}

type Moderator struct {
	chat   Chatter
	frames FrameSource
	model  string
	log    zerolog.Logger
}

func New(chat Chatter, frames FrameSource, model string, logger zerolog.Logger) *Moderator {
	return &Moderator{
		chat:   chat,
		frames: frames,
		model:  model,
		log:    logger.With().Str("component", "vision").Logger(),
	}
}

// ModerateImage classifies the image at url (http(s) or data URL).
func (m *Moderator) ModerateImage(ctx context.Context, url string) Result {
	temperature := 0.0
	content, err := m.chat.Chat(ctx, ai.ChatRequest{
		Model: m.model,
		Messages: []ai.Message{
			{Role: "system", Content: []ai.ContentPart{ai.TextPart(Rubric)}},
			{Role: "user", Content: []ai.ContentPart{
				ai.TextPart(userInstruction),
				ai.ImagePart(url, "low"),
			}},
		},
		MaxTokens:      300,
		Temperature:    &temperature,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return m.failure(err)
	}
	return Interpret(content)
}

// ModerateVideo classifies the frame at the midpoint, falling back to a still image.
func (m *Moderator) ModerateVideo(ctx context.Context, source string, duration float64, fallback string) Result {
	at := time.Duration(duration / 2 * float64(time.Second))
	if m.frames != nil && source != "" {
		frame, err := m.frames.Frame(ctx, source, at)
		if err == nil {
			return m.ModerateImage(ctx, ai.EncodeDataURL("image/jpeg", frame))
		}
		m.log.Warn().Err(err).Dur("at", at).Msg("frame extraction failed")
	}

	if fallback != "" {
		return m.ModerateImage(ctx, fallback)
	}

	return Result{
		Safe:        false,
		Status:      models.ModerationFlagged,
		Categories:  []string{"unanalysable_video"},
		Severity:    models.SeverityHigh,
		Confidence:  Confidences[models.SeverityHigh],
		Explanation: "No frame could be extracted for analysis; manual review required",
		Err:         errors.New("no frame available"),
	}
}

func (m *Moderator) ModerateMedia(ctx context.Context, subject moderation.Subject) moderation.Verdict {
	if subject.Kind == models.MediaVideo {
		return VerdictFor(m.ModerateVideo(ctx, subject.MediaURL, subject.Duration, subject.Fallback))
	}
	return VerdictFor(m.ModerateImage(ctx, subject.MediaURL))
}

func (m *Moderator) failure(err error) Result {
	if ai.IsOutage(err) {
		m.log.Error().Err(err).Msg("vision provider unreachable, blocking content")
		return Result{
			Safe:        false,
			Status:      models.ModerationRejected,
			Categories:  []string{"moderation_unavailable"},
			Severity:    models.SeverityCritical,
			Confidence:  Confidences[models.SeverityCritical],
			Explanation: "Moderation service unavailable - content blocked for safety.",
			Timeout:     errors.Is(err, ai.ErrTimeout),
			Err:         err,
		}
	}
	m.log.Warn().Err(err).Msg("vision provider error")
	return Result{
		Safe:        false,
		Status:      models.ModerationFlagged,
		Categories:  []string{"api_error"},
		Severity:    models.SeverityMedium,
		Confidence:  Confidences[models.SeverityMedium],
		Explanation: "Moderation service error; manual review required",
		Err:         err,
	}
}

// IsRefusal reports whether content reads as the model declining to analyse.
func IsRefusal(content string) bool {
	lower := strings.ToLower(strings.ReplaceAll(content, "’", "'"))
	for _, phrase := range RefusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

type answer struct {
	Flagged     bool     `json:"flagged"`
	Categories  []string `json:"categories"`
	Severity    string   `json:"severity"`
	Explanation string   `json:"explanation"`
}

// Interpret turns raw model output into a result. Anything that is not a well-formed
// answer is treated as unsafe.
func Interpret(content string) Result {
	res := Result{Raw: content}

	body, ok := extractJSON(content)
	var a answer
	if !ok || json.Unmarshal([]byte(body), &a) != nil {
		if IsRefusal(content) {
			return refusal(res)
		}
		res.Status = models.ModerationRejected
		res.Severity = models.SeverityHigh
		res.Confidence = Confidences[models.SeverityHigh]
		res.Categories = []string{"unparseable_response"}
		res.Explanation = "Moderation response could not be interpreted - content blocked for safety."
		return res
	}
	if IsRefusal(a.Explanation) && !a.Flagged {
		return refusal(res)
	}

	res.Explanation = a.Explanation
	if !a.Flagged {
		res.Safe = true
		res.Status = models.ModerationApproved
		res.Severity = models.SeverityLow
		return res
	}

	severity := models.Severity(strings.ToLower(strings.TrimSpace(a.Severity)))
	status, known := Statuses[severity]
	if !known {
		severity = models.SeverityHigh
		status = models.ModerationFlagged
	}
	res.Severity = severity
	res.Status = status
	res.Confidence = Confidences[severity]
	res.Categories = a.Categories
	res.Safe = status == models.ModerationApproved
	return res
}

func refusal(res Result) Result {
	res.Safe = false
	res.Status = models.ModerationRejected
	res.Severity = models.SeverityCritical
	res.Confidence = Confidences[models.SeverityCritical]
	res.Categories = []string{"explicit_content"}
	res.Explanation = "Content too explicit for automated analysis"
	return res
}

func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

func VerdictFor(res Result) moderation.Verdict {
	v := moderation.Verdict{
		Service:     models.ServiceVision,
		Status:      res.Status,
		Severity:    res.Severity,
		Confidence:  res.Confidence,
		Categories:  res.Categories,
		Explanation: res.Explanation,
		Raw:         []byte(res.Raw),
	}
	if res.Err != nil {
		v.Err = res.Err.Error()
		v.Outage = ai.IsOutage(res.Err)
	}
	if !res.Safe {
		for _, c := range res.Categories {
			detail, _ := json.Marshal(map[string]any{"timeout": res.Timeout})
			v.Flags = append(v.Flags, models.ContentFlag{
				Category:   c,
				Confidence: res.Confidence,
				Severity:   res.Severity,
				Detail:     detail,
			})
		}
	}
	return v
}
