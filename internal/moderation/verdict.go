package moderation

import (
	"sort"
	"strings"

	"promptfinder/internal/models"
)

// Verdict is one moderator's answer for one run. Moderators never return errors;
// failures are reported through Err with a fail-closed or fail-soft status already chosen.
type Verdict struct {
	Service     models.ModerationService
	Status      models.ModerationStatus
	Severity    models.Severity
	Confidence  float64
	Categories  []string
	Explanation string
	Flags       []models.ContentFlag
	Raw         []byte
	Err         string

	// Outage is set when the provider could not be reached at all.
	Outage bool
}

func (v Verdict) Errored() bool {
	return v.Err != ""
}

// Unreachable reports whether any layer failed because its provider was down.
func Unreachable(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if v.Outage {
			return true
		}
	}
	return false
}

// Log converts the verdict into its audit row.
func (v Verdict) Log() models.ModerationLog {
	notes := ""
	if v.Err != "" {
		notes = "error: " + v.Err
	}
	return models.ModerationLog{
		Service:     v.Service,
		Status:      v.Status,
		Confidence:  v.Confidence,
		Severity:    v.Severity,
		Categories:  v.Categories,
		Explanation: v.Explanation,
		RawResponse: v.Raw,
		Notes:       notes,
		Flags:       v.Flags,
	}
}

// Approved is the verdict for a layer that had nothing to inspect.
func Approved(service models.ModerationService, explanation string) Verdict {
	return Verdict{
		Service:     service,
		Status:      models.ModerationApproved,
		Severity:    models.SeverityLow,
		Explanation: explanation,
	}
}

type Outcome struct {
	Status         models.ModerationStatus
	RequiresReview bool
	Severity       models.Severity
	Categories     []string
}

// Aggregate folds verdicts into the overall result.
func Aggregate(verdicts []Verdict) Outcome {
	out := Outcome{Severity: models.SeverityLow}
	seen := make(map[string]struct{})
	rejected, flagged, approved := false, false, 0

	for _, v := range verdicts {
		switch {
		case v.Status == models.ModerationRejected:
			rejected = true
		case v.Status == models.ModerationFlagged || v.Errored():
			flagged = true
		case v.Status == models.ModerationApproved:
			approved++
		}
		if v.Status != models.ModerationApproved || v.Errored() {
			out.Severity = models.MaxSeverity(out.Severity, v.Severity)
			for _, c := range v.Categories {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					out.Categories = append(out.Categories, c)
				}
			}
		}
	}
	sort.Strings(out.Categories)

	switch {
	case rejected:
		out.Status, out.RequiresReview = models.ModerationRejected, true
	case flagged:
		out.Status, out.RequiresReview = models.ModerationFlagged, true
	case approved > 0 && approved == len(verdicts):
		out.Status, out.RequiresReview = models.ModerationApproved, false
	default:
		out.Status, out.RequiresReview = models.ModerationFlagged, true
	}
	return out
}

// CombinedText is the text every text-based moderator sees.
func CombinedText(title, content, excerpt string) string {
	return "Title: " + strings.TrimSpace(title) +
		"\nContent: " + strings.TrimSpace(content) +
		"\nExcerpt: " + strings.TrimSpace(excerpt)
}

// CategoryFamily collapses "sexual/minors" style categories to their family for user-facing errors.
func CategoryFamily(categories []string) []string {
	var families []string
	seen := make(map[string]struct{})
	for _, c := range categories {
		family := strings.SplitN(c, "/", 2)[0]
		family = strings.ReplaceAll(family, "_", " ")
		if _, ok := seen[family]; ok {
			continue
		}
		seen[family] = struct{}{}
		families = append(families, family)
	}
	return families
}
