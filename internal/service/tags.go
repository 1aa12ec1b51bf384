package service

import (
	"context"
	"fmt"
	"strings"

	"promptfinder/internal/models"
)

// catalogTags case-folds and deduplicates user tags, then rejects anything outside the catalog.
// An empty input needs no catalog lookup.
func catalogTags(ctx context.Context, catalog TagCatalog, tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > models.MaxTagsPerPost {
		return nil, invalidInput(fmt.Sprintf("At most %d tags are allowed.", models.MaxTagsPerPost))
	}
	if len(out) == 0 {
		return out, nil
	}

	names, err := catalog.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tag catalog: %w", err)
	}
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var unknown []string
	for _, t := range out {
		if _, ok := known[t]; !ok {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return nil, invalidInput("Unknown tags: " + strings.Join(unknown, ", "))
	}
	return out, nil
}
