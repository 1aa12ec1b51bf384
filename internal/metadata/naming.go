package metadata

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"promptfinder/internal/models"
)

const (
	FallbackTitle  = "Untitled Upload"
	maxSlugBase    = 50
	maxAltText     = 125
	minSlugTokens  = 3
	altTextSuffix  = " AI Art Prompt for Image Generation"
	videoTitleTail = " - AI Video Prompt"
)

var stopWords = func() map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields("the a an in on at to for of with by") {
		words[w] = struct{}{}
	}
	return words
}()

// SlugBase turns a title into the keyword part of a filename.
func SlugBase(title string) string {
	tokens := strings.Split(slug.Make(title), "-")
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) < minSlugTokens {
		kept = kept[:0]
		for _, tok := range tokens {
			if tok != "" {
				kept = append(kept, tok)
			}
		}
	}

	var b strings.Builder
	for _, tok := range kept {
		next := len(tok)
		if b.Len() > 0 {
			next++
		}
		if b.Len()+next > maxSlugBase {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString(tok)
	}
	if b.Len() == 0 && len(kept) > 0 {
		// one very long token
		return kept[0][:maxSlugBase]
	}
	if b.Len() == 0 {
		return slug.Make(FallbackTitle)
	}
	return b.String()
}

// GeneratorSlug resolves the URL slug for a generator label.
func GeneratorSlug(generator string) string {
	if g, ok := models.LookupGenerator(generator); ok {
		return g.Slug
	}
	if s := slug.Make(generator); s != "" {
		return s
	}
	return "ai"
}

// SEOFilename builds "{keywords}-{generator}-prompt-{unix}.jpg".
func SEOFilename(title, generator string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-prompt-%d.jpg", SlugBase(title), GeneratorSlug(generator), ts.Unix())
}

// FilenameBase strips the extension from a stored SEO filename.
func FilenameBase(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// AltText builds the accessibility text, truncating the title on a word boundary.
func AltText(title, generator string) string {
	name := generator
	if g, ok := models.LookupGenerator(generator); ok {
		name = g.Name
	}
	tail := " - " + name + altTextSuffix
	full := title + tail
	if utf8.RuneCountInString(full) <= maxAltText {
		return full
	}

	budget := maxAltText - utf8.RuneCountInString(tail) - len("...")
	if budget <= 0 {
		return truncateRunes(full, maxAltText)
	}
	return truncateWords(title, budget) + "..." + tail
}

// VideoTitle is the local title for short video prompts.
func VideoTitle(prompt string) string {
	return titleCase(strings.TrimSpace(prompt)) + videoTitleTail
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := truncateRunes(s, limit)
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.-")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
