package metadata

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/config"
)

const (
	MaxSuggestedTags = 5
	shortPromptWords = 10
)

type Chatter interface {
	Chat(ctx context.Context, req ai.ChatRequest) (string, error)
	DataURL(ctx context.Context, url string, limit int64) (string, error)
}

type TagCatalog interface {
	Names(ctx context.Context) ([]string, error)
}

type Request struct {
	ImageURL    string
	ImageData   []byte
	ContentType string
	PromptText  string
	Generator   string
	// IncludeModeration asks the model to list policy violations first.
	IncludeModeration bool
}

type Result struct {
	Violations           []string `json:"violations,omitempty"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	SuggestedTags        []string `json:"suggested_tags"`
	RelevanceScore       float64  `json:"relevance_score"`
	RelevanceExplanation string   `json:"relevance_explanation"`
	SEOFilename          string   `json:"seo_filename"`
	AltTag               string   `json:"alt_tag"`
	Timeout              bool     `json:"timeout,omitempty"`
}

type Generator struct {
	client  Chatter
	tags    TagCatalog
	model   string
	timeout time.Duration
	limit   int64
	log     zerolog.Logger
	now     func() time.Time
}

func NewGenerator(client Chatter, tags TagCatalog, cfg config.OpenAIConfig, logger zerolog.Logger) *Generator {
	timeout := cfg.MetadataTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.MaxImageBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	model := cfg.VisionModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Generator{
		client:  client,
		tags:    tags,
		model:   model,
		timeout: timeout,
		limit:   limit,
		log:     logger.With().Str("component", "metadata").Logger(),
		now:     time.Now,
	}
}

// Fallback is the safe default used when the model cannot be reached.
func (g *Generator) Fallback(generator string, timeout bool) Result {
	return Result{
		Title:         FallbackTitle,
		Description:   "",
		SuggestedTags: []string{},
		SEOFilename:   SEOFilename(FallbackTitle, generator, g.now()),
		AltTag:        AltText(FallbackTitle, generator),
		Timeout:       timeout,
	}
}

type modelAnswer struct {
	Violations           []string `json:"violations"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	SuggestedTags        []string `json:"suggested_tags"`
	Tags                 []string `json:"tags"`
	RelevanceScore       float64  `json:"relevance_score"`
	RelevanceExplanation string   `json:"relevance_explanation"`
}

// Generate asks the vision model for title, description and tags. It never fails:
// outages yield the fallback with Timeout set.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	catalog := g.catalog(ctx)

	image, err := g.imageURL(ctx, req)
	if err != nil {
		if ai.IsOutage(err) {
			g.log.Warn().Err(err).Msg("image download timed out")
			return g.Fallback(req.Generator, true)
		}
		g.log.Warn().Err(err).Msg("image download failed, sending url")
		image = req.ImageURL
	}

	content, err := g.client.Chat(ctx, ai.ChatRequest{
		Model: g.model,
		Messages: []ai.Message{{
			Role: "user",
			Content: []ai.ContentPart{
				ai.TextPart(buildPrompt(req.PromptText, catalog, req.IncludeModeration)),
				ai.ImagePart(image, "low"),
			},
		}},
		MaxTokens:      500,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		outage := ai.IsOutage(err)
		g.log.Warn().Err(err).Bool("outage", outage).Msg("metadata generation failed")
		return g.Fallback(req.Generator, outage)
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		g.log.Warn().Err(err).Msg("metadata response not JSON")
		return g.Fallback(req.Generator, false)
	}

	title := strings.TrimSpace(answer.Title)
	if title == "" {
		title = FallbackTitle
	}
	tags := answer.SuggestedTags
	if len(tags) == 0 {
		tags = answer.Tags
	}

	return Result{
		Violations:           answer.Violations,
		Title:                title,
		Description:          strings.TrimSpace(answer.Description),
		SuggestedTags:        FilterTags(tags, catalog, MaxSuggestedTags),
		RelevanceScore:       clamp01(answer.RelevanceScore),
		RelevanceExplanation: answer.RelevanceExplanation,
		SEOFilename:          SEOFilename(title, req.Generator, g.now()),
		AltTag:               AltText(title, req.Generator),
	}
}

// GenerateFromText builds metadata for video posts from the prompt alone.
func (g *Generator) GenerateFromText(ctx context.Context, prompt, generator string) Result {
	prompt = strings.TrimSpace(prompt)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	catalog := g.catalog(ctx)

	textFallback := func(timeout bool) Result {
		title := truncateRunes(prompt, 50) + videoTitleTail
		return g.finish(Result{
			Title:       title,
			Description: "Video prompt: " + truncateRunes(prompt, 150),
			Timeout:     timeout,
		}, generator)
	}

	if len(strings.Fields(prompt)) < shortPromptWords {
		return g.finish(Result{
			Title:         VideoTitle(prompt),
			Description:   "AI-generated prompt: " + prompt,
			SuggestedTags: MatchTags(prompt, catalog, MaxSuggestedTags),
		}, generator)
	}

	content, err := g.client.Chat(ctx, ai.ChatRequest{
		Model: g.model,
		Messages: []ai.Message{{
			Role:    "user",
			Content: []ai.ContentPart{ai.TextPart(buildTextPrompt(prompt, catalog))},
		}},
		MaxTokens:      500,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("text metadata generation failed")
		return textFallback(ai.IsOutage(err))
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil || strings.TrimSpace(answer.Title) == "" {
		return textFallback(false)
	}
	tags := answer.Tags
	if len(tags) == 0 {
		tags = answer.SuggestedTags
	}
	return g.finish(Result{
		Title:         strings.TrimSpace(answer.Title),
		Description:   strings.TrimSpace(answer.Description),
		SuggestedTags: FilterTags(tags, catalog, MaxSuggestedTags),
	}, generator)
}

func (g *Generator) finish(res Result, generator string) Result {
	if res.SuggestedTags == nil {
		res.SuggestedTags = []string{}
	}
	res.SEOFilename = SEOFilename(res.Title, generator, g.now())
	res.AltTag = AltText(res.Title, generator)
	return res
}

func (g *Generator) catalog(ctx context.Context) []string {
	if g.tags == nil {
		return nil
	}
	names, err := g.tags.Names(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("load tag catalog")
		return nil
	}
	return names
}

func (g *Generator) imageURL(ctx context.Context, req Request) (string, error) {
	if len(req.ImageData) > 0 {
		return ai.EncodeDataURL(req.ContentType, req.ImageData), nil
	}
	if req.ImageURL == "" || strings.HasPrefix(req.ImageURL, "data:") {
		return req.ImageURL, nil
	}
	return g.client.DataURL(ctx, req.ImageURL, g.limit)
}

// FilterTags keeps catalog names only, case-folded and deduplicated, up to limit.
func FilterTags(suggested, catalog []string, limit int) []string {
	known := make(map[string]struct{}, len(catalog))
	for _, name := range catalog {
		known[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for _, tag := range suggested {
		t := strings.ToLower(strings.TrimSpace(tag))
		if _, ok := known[t]; !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

// MatchTags picks catalog names that appear in, or contain a word of, the prompt.
func MatchTags(prompt string, catalog []string, limit int) []string {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(prompt)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) >= 3 {
			words[w] = struct{}{}
		}
	}
	out := make([]string, 0, limit)
	for _, name := range catalog {
		tag := strings.ToLower(strings.TrimSpace(name))
		hit := false
		if _, ok := words[tag]; ok {
			hit = true
		} else {
			for w := range words {
				if strings.Contains(tag, w) {
					hit = true
					break
				}
			}
		}
		if hit {
			out = append(out, tag)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func buildPrompt(promptText string, catalog []string, includeModeration bool) string {
	tags := "No tags available"
	if len(catalog) > 0 {
		tags = strings.Join(catalog, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this image and the user's prompt text: %q.\n\n", promptText)
	if includeModeration {
		b.WriteString(`First check for policy violations: explicit nudity or sexual content, graphic violence or gore, minors, hate symbols, graphic medical content, self-harm.
If any are present, return {"violations": ["..."]} and nothing else.

`)
	}
	b.WriteString(`Respond with JSON only:
{
  "violations": [],
  "title": "Short, descriptive title (5-10 words)",
  "description": "SEO-friendly description (50-100 words) of the image and how to use this prompt",
  "suggested_tags": ["5 most relevant tags from the list"],
  "relevance_score": 0.85,
  "relevance_explanation": "How well the prompt matches the image"
}
Relevance: 1.0 is a perfect match, 0.0 is unrelated.
`)
	fmt.Fprintf(&b, "Tag options (choose 5): %s", tags)
	return b.String()
}

func buildTextPrompt(promptText string, catalog []string) string {
	limit := len(catalog)
	if limit > 100 {
		limit = 100
	}
	return fmt.Sprintf(`Analyze this AI video prompt and generate:
1. A catchy, SEO-friendly title (max 60 characters)
2. A brief description (max 150 characters)
3. 5 relevant tags from this list only: %s

Prompt: %q

Respond with JSON only: {"title": "...", "description": "...", "tags": ["..."]}`,
		strings.Join(catalog[:limit], ", "), promptText)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
