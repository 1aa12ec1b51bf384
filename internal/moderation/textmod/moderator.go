package textmod

import (
	"context"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

// Severities maps classifier categories to severity. Unlisted categories are low.
var Severities = map[string]models.Severity{
	"sexual/minors":          models.SeverityCritical,
	"hate/threatening":       models.SeverityCritical,
	"self-harm/intent":       models.SeverityCritical,
	"self-harm/instructions": models.SeverityCritical,
	"violence/graphic":       models.SeverityCritical,

	"sexual":                 models.SeverityHigh,
	"hate":                   models.SeverityHigh,
	"harassment/threatening": models.SeverityHigh,
	"violence":               models.SeverityHigh,

	"harassment": models.SeverityMedium,
	"self-harm":  models.SeverityMedium,
}

func SeverityFor(category string) models.Severity {
	if s, ok := Severities[category]; ok {
		return s
	}
	return models.SeverityLow
}

const APIErrorCategory = "api_error"

type Classifier interface {
	Moderate(ctx context.Context, input string) (ai.ModerationResult, error)
}

type Flag struct {
	Category   string          `json:"category"`
	Confidence float64         `json:"confidence"`
	Severity   models.Severity `json:"severity"`
}

type Result struct {
	Safe          bool
	Flags         []Flag
	MaxConfidence float64
	Status        models.ModerationStatus
	Severity      models.Severity
	Raw           []byte
	Err           error
}

type Moderator struct {
	client Classifier
	log    zerolog.Logger
}

func New(client Classifier, logger zerolog.Logger) *Moderator {
	return &Moderator{client: client, log: logger.With().Str("component", "textmod").Logger()}
}

// Check classifies text. Upstream failures are fail-soft: flagged for review, never rejected.
func (m *Moderator) Check(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Safe: true, Status: models.ModerationApproved, Severity: models.SeverityLow}
	}

	res, err := m.client.Moderate(ctx, text)
	if err != nil {
		m.log.Warn().Err(err).Bool("outage", ai.IsOutage(err)).Msg("text classifier failed")
		return Result{
			Safe:     false,
			Flags:    []Flag{{Category: APIErrorCategory, Severity: models.SeverityMedium}},
			Status:   models.ModerationFlagged,
			Severity: models.SeverityMedium,
			Err:      err,
		}
	}
	return Interpret(res)
}

// Interpret maps a classifier answer onto flags and a status.
func Interpret(res ai.ModerationResult) Result {
	out := Result{Safe: true, Status: models.ModerationApproved, Severity: models.SeverityLow}
	out.Raw, _ = json.Marshal(res)

	for category, hit := range res.Categories {
		if !hit {
			continue
		}
		f := Flag{
			Category:   category,
			Confidence: res.CategoryScores[category],
			Severity:   SeverityFor(category),
		}
		out.Flags = append(out.Flags, f)
		if f.Confidence > out.MaxConfidence {
			out.MaxConfidence = f.Confidence
		}
		out.Severity = models.MaxSeverity(out.Severity, f.Severity)
	}

	sort.Slice(out.Flags, func(i, j int) bool {
		if out.Flags[i].Confidence == out.Flags[j].Confidence {
			return out.Flags[i].Category < out.Flags[j].Category
		}
		return out.Flags[i].Confidence > out.Flags[j].Confidence
	})

	if len(out.Flags) == 0 {
		return out
	}
	out.Safe = false
	if out.Severity == models.SeverityCritical {
		out.Status = models.ModerationRejected
	} else {
		out.Status = models.ModerationFlagged
	}
	return out
}

func (m *Moderator) ModerateText(ctx context.Context, text string) moderation.Verdict {
	return VerdictFor(m.Check(ctx, text))
}

func VerdictFor(res Result) moderation.Verdict {
	v := moderation.Verdict{
		Service:    models.ServiceText,
		Status:     res.Status,
		Severity:   res.Severity,
		Confidence: res.MaxConfidence,
		Raw:        res.Raw,
	}
	if res.Err != nil {
		v.Err = res.Err.Error()
		v.Explanation = "Text classifier unavailable; manual review required"
	} else if res.Safe {
		v.Explanation = "No policy categories flagged"
	}

	for _, f := range res.Flags {
		v.Categories = append(v.Categories, f.Category)
		v.Flags = append(v.Flags, models.ContentFlag{
			Category:   f.Category,
			Confidence: f.Confidence,
			Severity:   f.Severity,
		})
	}
	if !res.Safe && res.Err == nil {
		v.Explanation = "Flagged categories: " + strings.Join(v.Categories, ", ")
	}
	return v
}
