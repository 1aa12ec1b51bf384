package lexical

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

// CacheKey holds the JSON-encoded active word list.
const CacheKey = "profanity_word_list"

const DefaultTTL = 5 * time.Minute

type WordSource interface {
	ActiveWords(ctx context.Context) ([]models.ProfanityEntry, error)
}

type Match struct {
	Word      string          `json:"word"`
	Severity  models.Severity `json:"severity"`
	Count     int             `json:"count"`
	Positions []int           `json:"positions"`
}

type Result struct {
	Clean       bool
	Matches     []Match
	MaxSeverity models.Severity
	Err         error
}

type cachedWord struct {
	Word     string          `json:"word"`
	Severity models.Severity `json:"severity"`
}

type Filter struct {
	source WordSource
	cache  *redis.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewFilter(source WordSource, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		source:   source,
		cache:    cache,
		ttl:      ttl,
		log:      logger.With().Str("component", "lexical").Logger(),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Check scans text for whole-word, case-insensitive matches against the active list.
// Internal failures report a medium-severity "error" match so callers stay closed.
func (f *Filter) Check(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Clean: true, MaxSeverity: models.SeverityLow}
	}

	words, err := f.words(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("load word list")
		return Result{
			Clean:       false,
			Matches:     []Match{{Word: "error", Severity: models.SeverityMedium}},
			MaxSeverity: models.SeverityMedium,
			Err:         err,
		}
	}

	res := Result{Clean: true, MaxSeverity: models.SeverityLow}
	for _, w := range words {
		re, err := f.pattern(w.Word)
		if err != nil {
			continue
		}
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		positions := make([]int, 0, len(locs))
		for _, loc := range locs {
			positions = append(positions, loc[0])
		}
		res.Matches = append(res.Matches, Match{
			Word:      w.Word,
			Severity:  w.Severity,
			Count:     len(locs),
			Positions: positions,
		})
		res.MaxSeverity = models.MaxSeverity(res.MaxSeverity, w.Severity)
		res.Clean = false
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Severity.Rank() > res.Matches[j].Severity.Rank()
	})
	return res
}

// ModerateText adapts Check to the orchestrator contract.
func (f *Filter) ModerateText(ctx context.Context, text string) moderation.Verdict {
	return VerdictFor(f.Check(ctx, text))
}

func VerdictFor(res Result) moderation.Verdict {
	v := moderation.Verdict{
		Service:  models.ServiceLexical,
		Status:   models.ModerationApproved,
		Severity: res.MaxSeverity,
	}
	if res.Err != nil {
		v.Err = res.Err.Error()
	}
	if res.Clean {
		v.Explanation = "No profanity detected"
		return v
	}

	v.Confidence = 1
	switch res.MaxSeverity {
	case models.SeverityCritical:
		v.Status = models.ModerationRejected
	case models.SeverityHigh:
		v.Status = models.ModerationFlagged
	}

	words := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		words = append(words, m.Word)
		detail, _ := json.Marshal(map[string]any{"count": m.Count, "positions": m.Positions})
		v.Flags = append(v.Flags, models.ContentFlag{
			Category:   "profanity",
			Confidence: 1,
			Severity:   m.Severity,
			Detail:     detail,
		})
	}
	v.Categories = []string{"profanity"}
	v.Explanation = fmt.Sprintf("Matched %d word(s): %s", len(words), strings.Join(words, ", "))
	v.Raw, _ = json.Marshal(res.Matches)
	return v
}

// Invalidate drops the cached list so the next check reloads it.
func (f *Filter) Invalidate(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	if err := f.cache.Del(ctx, CacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate word list: %w", err)
	}
	return nil
}

func (f *Filter) words(ctx context.Context) ([]cachedWord, error) {
	if f.cache != nil {
		raw, err := f.cache.Get(ctx, CacheKey).Bytes()
		switch {
		case err == nil:
			var words []cachedWord
			if err := json.Unmarshal(raw, &words); err == nil {
				return words, nil
			}
			f.log.Warn().Msg("discarding malformed cached word list")
		case !errors.Is(err, redis.Nil):
			f.log.Warn().Err(err).Msg("word list cache unavailable")
		}
	}

	entries, err := f.source.ActiveWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("active words: %w", err)
	}
	words := make([]cachedWord, 0, len(entries))
	for _, e := range entries {
		if !e.Active || strings.TrimSpace(e.Word) == "" {
			continue
		}
		words = append(words, cachedWord{Word: strings.ToLower(strings.TrimSpace(e.Word)), Severity: e.Severity})
	}

	if f.cache != nil {
		if encoded, err := json.Marshal(words); err == nil {
			if err := f.cache.Set(ctx, CacheKey, encoded, f.ttl).Err(); err != nil {
				f.log.Warn().Err(err).Msg("cache word list")
			}
		}
	}
	return words, nil
}

func (f *Filter) pattern(word string) (*regexp.Regexp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if re, ok := f.patterns[word]; ok {
		return re, nil
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return nil, err
	}
	f.patterns[word] = re
	return re, nil
}
