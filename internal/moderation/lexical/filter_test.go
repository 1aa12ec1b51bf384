package lexical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"promptfinder/internal/models"
)

type stubSource struct {
	entries []models.ProfanityEntry
	err     error
	calls   int
}

func (s *stubSource) ActiveWords(ctx context.Context) ([]models.ProfanityEntry, error) {
	s.calls++
	return s.entries, s.err
}

func newTestFilter(t *testing.T, source WordSource) (*Filter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFilter(source, client, 5*time.Minute, zerolog.Nop()), mr
}

func words() []models.ProfanityEntry {
	return []models.ProfanityEntry{
		{Word: "darn", Severity: models.SeverityLow, Active: true},
		{Word: "gore", Severity: models.SeverityHigh, Active: true},
		{Word: "slur", Severity: models.SeverityCritical, Active: true},
		{Word: "retired", Severity: models.SeverityCritical, Active: false},
	}
}

func TestCheckWholeWordCaseInsensitive(t *testing.T) {
	f, _ := newTestFilter(t, &stubSource{entries: words()})

	res := f.Check(context.Background(), "Darn it, GORE and more darn. Gorey is fine.")
	if res.Clean {
		t.Fatal("Expected matches")
	}
	if res.MaxSeverity != models.SeverityHigh {
		t.Errorf("Expected high, got %s", res.MaxSeverity)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("Expected 2 matched words, got %+v", res.Matches)
	}
	if res.Matches[0].Word != "gore" || res.Matches[0].Count != 1 {
		t.Errorf("Expected gore first by severity, got %+v", res.Matches[0])
	}
	darn := res.Matches[1]
	if darn.Count != 2 || darn.Positions[0] != 0 {
		t.Errorf("Expected darn twice starting at 0, got %+v", darn)
	}
}

func TestCheckIgnoresInactiveAndEmpty(t *testing.T) {
	f, _ := newTestFilter(t, &stubSource{entries: words()})

	if res := f.Check(context.Background(), "retired words stay quiet"); !res.Clean {
		t.Errorf("Expected inactive word ignored, got %+v", res.Matches)
	}
	if res := f.Check(context.Background(), "   "); !res.Clean || res.MaxSeverity != models.SeverityLow {
		t.Errorf("Expected empty text clean/low, got %+v", res)
	}
}

func TestCheckCachesWordList(t *testing.T) {
	src := &stubSource{entries: words()}
	f, mr := newTestFilter(t, src)

	f.Check(context.Background(), "one")
	f.Check(context.Background(), "two")
	if src.calls != 1 {
		t.Errorf("Expected one source load, got %d", src.calls)
	}
	if ttl := mr.TTL(CacheKey); ttl != 5*time.Minute {
		t.Errorf("Expected 5m TTL, got %s", ttl)
	}

	mr.FastForward(6 * time.Minute)
	f.Check(context.Background(), "three")
	if src.calls != 2 {
		t.Errorf("Expected reload after TTL, got %d loads", src.calls)
	}

	if err := f.Invalidate(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if mr.Exists(CacheKey) {
		t.Error("Expected cache key removed")
	}
	f.Check(context.Background(), "four")
	if src.calls != 3 {
		t.Errorf("Expected reload after invalidate, got %d loads", src.calls)
	}
}

func TestCheckSourceErrorFailsClosed(t *testing.T) {
	f, _ := newTestFilter(t, &stubSource{err: errors.New("db down")})

	res := f.Check(context.Background(), "anything")
	if res.Clean || res.MaxSeverity != models.SeverityMedium {
		t.Fatalf("Expected unclean/medium, got %+v", res)
	}
	if len(res.Matches) != 1 || res.Matches[0].Word != "error" {
		t.Errorf("Expected error match, got %+v", res.Matches)
	}

	v := VerdictFor(res)
	if !v.Errored() {
		t.Error("Expected verdict to carry the error")
	}
}

func TestVerdictFor(t *testing.T) {
	cases := []struct {
		severity models.Severity
		status   models.ModerationStatus
	}{
		{models.SeverityCritical, models.ModerationRejected},
		{models.SeverityHigh, models.ModerationFlagged},
		{models.SeverityMedium, models.ModerationApproved},
		{models.SeverityLow, models.ModerationApproved},
	}
	for _, tc := range cases {
		v := VerdictFor(Result{Matches: []Match{{Word: "w", Severity: tc.severity, Count: 1}}, MaxSeverity: tc.severity})
		if v.Status != tc.status || v.Confidence != 1 {
			t.Errorf("%s: Expected %s with confidence 1, got %s/%v", tc.severity, tc.status, v.Status, v.Confidence)
		}
	}

	clean := VerdictFor(Result{Clean: true, MaxSeverity: models.SeverityLow})
	if clean.Status != models.ModerationApproved || clean.Confidence != 0 {
		t.Errorf("Expected clean approved with confidence 0, got %+v", clean)
	}
}
