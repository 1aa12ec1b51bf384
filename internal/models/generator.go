package models

import "strings"

type AIGenerator struct {
	Name           string
	Slug           string
	SupportsImages bool
	SupportsVideo  bool
}

var AIGenerators = []AIGenerator{
	{Name: "Midjourney", Slug: "midjourney", SupportsImages: true},
	{Name: "DALL-E 3", Slug: "dalle3", SupportsImages: true},
	{Name: "DALL-E 2", Slug: "dalle2", SupportsImages: true},
	{Name: "Stable Diffusion", Slug: "stable-diffusion", SupportsImages: true, SupportsVideo: true},
	{Name: "Leonardo AI", Slug: "leonardo-ai", SupportsImages: true, SupportsVideo: true},
	{Name: "Flux", Slug: "flux", SupportsImages: true},
	{Name: "Sora", Slug: "sora", SupportsImages: true, SupportsVideo: true},
	{Name: "Sora 2", Slug: "sora2", SupportsImages: true, SupportsVideo: true},
	{Name: "Veo 3", Slug: "veo3", SupportsVideo: true},
	{Name: "Adobe Firefly", Slug: "adobe-firefly", SupportsImages: true, SupportsVideo: true},
	{Name: "Bing Image Creator", Slug: "bing-image-creator", SupportsImages: true},
	{Name: "Grok", Slug: "grok", SupportsImages: true},
	{Name: "WAN 2.1", Slug: "wan21", SupportsImages: true, SupportsVideo: true},
	{Name: "WAN 2.2", Slug: "wan22", SupportsImages: true, SupportsVideo: true},
	{Name: "Nano Banana", Slug: "nano-banana", SupportsVideo: true},
	{Name: "Nano Banana Pro", Slug: "nano-banana-pro", SupportsVideo: true},
}

// LookupGenerator matches by display name or slug, case-insensitively.
func LookupGenerator(nameOrSlug string) (AIGenerator, bool) {
	needle := strings.TrimSpace(nameOrSlug)
	for _, g := range AIGenerators {
		if strings.EqualFold(g.Name, needle) || strings.EqualFold(g.Slug, needle) {
			return g, true
		}
	}
	return AIGenerator{}, false
}

func (g AIGenerator) Supports(kind MediaKind) bool {
	switch kind {
	case MediaImage:
		return g.SupportsImages
	case MediaVideo:
		return g.SupportsVideo
	}
	return false
}

// ValidMediaType validates a `type` filter value.
func ValidMediaType(value string) bool {
	return value == string(MediaImage) || value == string(MediaVideo)
}

// GeneratorsFor lists the generators usable for a media type filter.
func GeneratorsFor(kind MediaKind) []AIGenerator {
	out := make([]AIGenerator, 0, len(AIGenerators))
	for _, g := range AIGenerators {
		if g.Supports(kind) {
			out = append(out, g)
		}
	}
	return out
}
