package models

import (
	"testing"
	"time"
)

func completeImage() *ImageMedia {
	return &ImageMedia{
		URL:       "https://cdn/o.jpg",
		ThumbURL:  "https://cdn/t.jpg",
		MediumURL: "https://cdn/m.jpg",
		LargeURL:  "https://cdn/l.jpg",
		AltURL:    "https://cdn/a.webp",
	}
}

func TestVisibleTo(t *testing.T) {
	now := time.Now()
	author := Viewer{ID: "author"}
	stranger := Viewer{ID: "someone"}
	staff := Viewer{ID: "mod", Staff: true}

	cases := []struct {
		name       string
		post       Post
		strangerOK bool
	}{
		{"published approved", Post{Status: PostStatusPublished, ModerationStatus: ModerationApproved}, true},
		{"published flagged", Post{Status: PostStatusPublished, ModerationStatus: ModerationFlagged}, true},
		{"published pending", Post{Status: PostStatusPublished, ModerationStatus: ModerationPending}, false},
		{"draft approved", Post{Status: PostStatusDraft, ModerationStatus: ModerationApproved}, false},
		{"rejected", Post{Status: PostStatusDraft, ModerationStatus: ModerationRejected}, false},
		{"soft deleted", Post{Status: PostStatusPublished, ModerationStatus: ModerationApproved, DeletedAt: &now}, false},
	}

	for _, tc := range cases {
		tc.post.AuthorID = "author"
		if got := tc.post.VisibleTo(stranger); got != tc.strangerOK {
			t.Errorf("%s: Expected stranger visibility %v, got %v", tc.name, tc.strangerOK, got)
		}
		if got := tc.post.VisibleTo(Viewer{}); got != tc.strangerOK {
			t.Errorf("%s: Expected anonymous visibility %v, got %v", tc.name, tc.strangerOK, got)
		}
		if !tc.post.VisibleTo(author) {
			t.Errorf("%s: Expected author to see own post", tc.name)
		}
		if !tc.post.VisibleTo(staff) {
			t.Errorf("%s: Expected staff to see post", tc.name)
		}
	}
}

func TestMediaComplete(t *testing.T) {
	p := Post{Image: completeImage()}
	if !p.MediaComplete() {
		t.Error("Expected complete image group")
	}

	partial := completeImage()
	partial.AltURL = ""
	if (Post{Image: partial}).MediaComplete() {
		t.Error("Expected missing alt variant to be incomplete")
	}

	both := Post{Image: completeImage(), Video: &VideoMedia{URL: "v", ThumbURL: "t"}}
	if both.MediaComplete() {
		t.Error("Expected two media groups to be rejected")
	}

	if (Post{}).MediaComplete() {
		t.Error("Expected post without media to be incomplete")
	}
}

func TestWithMediaURLs(t *testing.T) {
	p := Post{Image: completeImage()}
	moved := p.WithMediaURLs(map[string]string{VariantThumb: "https://cdn/new-thumb.jpg"})

	if moved.Image.ThumbURL != "https://cdn/new-thumb.jpg" {
		t.Errorf("Expected thumb replaced, got %s", moved.Image.ThumbURL)
	}
	if moved.Image.URL != p.Image.URL {
		t.Errorf("Expected original untouched, got %s", moved.Image.URL)
	}
	if p.Image.ThumbURL != "https://cdn/t.jpg" {
		t.Error("Expected source post not mutated")
	}
}

func TestProcessingTransitions(t *testing.T) {
	if !ProcessingIdle.CanTransition(ProcessingGeneratingMetadata) {
		t.Error("Expected idle -> generating_metadata")
	}
	if ProcessingGeneratingMetadata.CanTransition(ProcessingIdle) {
		t.Error("Expected generating_metadata -> idle to be invalid")
	}

	sources := ProcessingSources(ProcessingComplete)
	if len(sources) != 3 || sources[0] != ProcessingComplete {
		t.Fatalf("Expected complete, generating_metadata and idle as sources, got %v", sources)
	}
	for _, from := range sources[1:] {
		if !from.CanTransition(ProcessingComplete) {
			t.Errorf("Expected %s -> complete to be valid", from)
		}
	}
	if got := ProcessingSources(ProcessingIdle); len(got) != 1 {
		t.Errorf("Expected idle reachable only from itself, got %v", got)
	}
}

func TestSeverityOrdering(t *testing.T) {
	if MaxSeverity(SeverityHigh, SeverityCritical) != SeverityCritical {
		t.Error("Expected critical to dominate")
	}
	if MaxSeverity(SeverityMedium, SeverityLow) != SeverityMedium {
		t.Error("Expected medium over low")
	}
}

func TestLookupGenerator(t *testing.T) {
	g, ok := LookupGenerator("dall-e 3")
	if !ok || g.Slug != "dalle3" {
		t.Fatalf("Expected DALL-E 3 lookup by name, got %+v %v", g, ok)
	}
	g, ok = LookupGenerator("NANO-BANANA-PRO")
	if !ok || g.SupportsImages || !g.SupportsVideo {
		t.Errorf("Expected video-only Nano Banana Pro, got %+v", g)
	}
	if _, ok := LookupGenerator("paint"); ok {
		t.Error("Expected unknown generator to miss")
	}
	if len(AIGenerators) != 16 {
		t.Errorf("Expected 16 generators, got %d", len(AIGenerators))
	}
	if !ValidMediaType("video") || ValidMediaType("audio") {
		t.Error("Expected media type filter to accept only image|video")
	}
	for _, g := range GeneratorsFor(MediaVideo) {
		if !g.SupportsVideo {
			t.Errorf("Expected only video generators, got %s", g.Name)
		}
	}
}
