package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promptfinder/internal/ai"
	"promptfinder/internal/models"
	"promptfinder/internal/moderation"
)

type stubChat struct {
	content string
	err     error
	last    ai.ChatRequest
	calls   int
}

func (s *stubChat) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	s.calls++
	s.last = req
	return s.content, s.err
}

type stubFrames struct {
	data []byte
	err  error
	at   time.Duration
}

func (s *stubFrames) Frame(ctx context.Context, input string, at time.Duration) ([]byte, error) {
	s.at = at
	return s.data, s.err
}

func TestInterpretSeverityMapping(t *testing.T) {
	cases := []struct {
		severity   string
		status     models.ModerationStatus
		confidence float64
		safe       bool
	}{
		{"critical", models.ModerationRejected, 1.0, false},
		{"high", models.ModerationFlagged, 0.85, false},
		{"medium", models.ModerationApproved, 0.65, true},
		{"low", models.ModerationApproved, 0.4, true},
	}
	for _, tc := range cases {
		res := Interpret(fmt.Sprintf(`{"flagged":true,"categories":["nudity"],"severity":%q,"explanation":"x"}`, tc.severity))
		if res.Status != tc.status || res.Confidence != tc.confidence || res.Safe != tc.safe {
			t.Errorf("%s: Expected %s/%v/%v, got %s/%v/%v", tc.severity, tc.status, tc.confidence, tc.safe, res.Status, res.Confidence, res.Safe)
		}
	}
}

func TestInterpretUnflagged(t *testing.T) {
	res := Interpret("```json\n{\"flagged\": false, \"categories\": [], \"severity\": \"low\", \"explanation\": \"landscape\"}\n```")
	if !res.Safe || res.Status != models.ModerationApproved || res.Confidence != 0 {
		t.Errorf("Expected approved with zero confidence, got %+v", res)
	}
}

func TestInterpretRefusal(t *testing.T) {
	for _, content := range []string{
		"I'm unable to assist with that.",
		"Sorry, I can’t analyze this image.",
		"This request goes against guidelines.",
		`{"flagged": false, "explanation": "I cannot assist with this request"}`,
	} {
		res := Interpret(content)
		if res.Status != models.ModerationRejected || res.Severity != models.SeverityCritical {
			t.Errorf("%q: Expected rejected/critical, got %s/%s", content, res.Status, res.Severity)
		}
	}
}

func TestInterpretUnparseableIsRejectedHigh(t *testing.T) {
	for _, content := range []string{
		"The picture shows a cat on a sofa.",
		`{"flagged": tru`,
		"",
	} {
		res := Interpret(content)
		if res.Safe || res.Status != models.ModerationRejected {
			t.Errorf("%q: Expected rejected, got %s", content, res.Status)
		}
		if res.Severity != models.SeverityHigh || res.Confidence != Confidences[models.SeverityHigh] {
			t.Errorf("%q: Expected high severity, got %s (%v)", content, res.Severity, res.Confidence)
		}
		if len(res.Categories) != 1 || res.Categories[0] != "unparseable_response" {
			t.Errorf("%q: Expected unparseable_response category, got %v", content, res.Categories)
		}
	}
}

func TestInterpretUnknownSeverityNeedsReview(t *testing.T) {
	res := Interpret(`{"flagged":true,"categories":["odd"],"severity":"extreme"}`)
	if res.Status != models.ModerationFlagged || res.Severity != models.SeverityHigh {
		t.Errorf("Expected flagged/high, got %s/%s", res.Status, res.Severity)
	}
}

func TestModerateImageRequest(t *testing.T) {
	chat := &stubChat{content: `{"flagged":false,"categories":[],"severity":"low","explanation":"ok"}`}
	res := New(chat, nil, "gpt-4o-mini", zerolog.Nop()).ModerateImage(context.Background(), "https://cdn/a.jpg")
	if !res.Safe {
		t.Fatalf("Expected safe, got %+v", res)
	}
	if chat.last.Model != "gpt-4o-mini" || chat.last.ResponseFormat == nil || chat.last.ResponseFormat.Type != "json_object" {
		t.Errorf("Unexpected request %+v", chat.last)
	}
	if !strings.Contains(chat.last.Messages[0].Content[0].Text, "critical: explicit nudity") {
		t.Error("Expected rubric in system message")
	}
	if img := chat.last.Messages[1].Content[1].ImageURL; img == nil || img.URL != "https://cdn/a.jpg" {
		t.Errorf("Expected image url part, got %+v", chat.last.Messages[1].Content)
	}
}

func TestModerateImageFailClosedOnOutage(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("%w: deadline", ai.ErrTimeout),
		fmt.Errorf("%w: connection refused", ai.ErrUnavailable),
		fmt.Errorf("%w: circuit breaker is open", ai.ErrUnavailable),
	} {
		res := New(&stubChat{err: err}, nil, "m", zerolog.Nop()).ModerateImage(context.Background(), "u")
		if res.Status != models.ModerationRejected || res.Severity != models.SeverityCritical {
			t.Errorf("%v: Expected rejected/critical, got %s/%s", err, res.Status, res.Severity)
		}
	}

	res := New(&stubChat{err: fmt.Errorf("%w: x", ai.ErrTimeout)}, nil, "m", zerolog.Nop()).ModerateImage(context.Background(), "u")
	if !res.Timeout {
		t.Error("Expected timeout recorded")
	}
}

func TestModerateImageOtherErrorFlagsMedium(t *testing.T) {
	err := &ai.APIError{StatusCode: 400, Body: "bad image"}
	res := New(&stubChat{err: err}, nil, "m", zerolog.Nop()).ModerateImage(context.Background(), "u")
	if res.Status != models.ModerationFlagged || res.Severity != models.SeverityMedium {
		t.Errorf("Expected flagged/medium, got %s/%s", res.Status, res.Severity)
	}
}

func TestModerateVideoUsesMidpointFrame(t *testing.T) {
	chat := &stubChat{content: `{"flagged":false}`}
	frames := &stubFrames{data: []byte{0xff, 0xd8}}
	res := New(chat, frames, "m", zerolog.Nop()).ModerateVideo(context.Background(), "/tmp/v.mp4", 20, "")
	if !res.Safe {
		t.Fatalf("Expected safe, got %+v", res)
	}
	if frames.at != 10*time.Second {
		t.Errorf("Expected frame at 10s, got %s", frames.at)
	}
	if url := chat.last.Messages[1].Content[1].ImageURL.URL; !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("Expected data URL, got %s", url)
	}
}

func TestModerateVideoFallsBackToThumbnail(t *testing.T) {
	chat := &stubChat{content: `{"flagged":false}`}
	frames := &stubFrames{err: errors.New("ffmpeg exit 1")}
	New(chat, frames, "m", zerolog.Nop()).ModerateVideo(context.Background(), "/tmp/v.mp4", 20, "https://cdn/thumb.jpg")
	if chat.last.Messages[1].Content[1].ImageURL.URL != "https://cdn/thumb.jpg" {
		t.Error("Expected thumbnail fallback")
	}
}

func TestModerateVideoWithoutAnyImageNeedsReview(t *testing.T) {
	chat := &stubChat{}
	res := New(chat, &stubFrames{err: errors.New("no frame")}, "m", zerolog.Nop()).ModerateVideo(context.Background(), "/tmp/v.mp4", 5, "")
	if res.Status != models.ModerationFlagged || res.Severity != models.SeverityHigh || chat.calls != 0 {
		t.Errorf("Expected flagged/high without model call, got %+v", res)
	}
}

func TestModerateMediaVerdict(t *testing.T) {
	chat := &stubChat{content: `{"flagged":true,"categories":["nudity"],"severity":"high","explanation":"artistic nude"}`}
	v := New(chat, nil, "m", zerolog.Nop()).ModerateMedia(context.Background(), moderation.Subject{Kind: models.MediaImage, MediaURL: "u"})
	if v.Service != models.ServiceVision || v.Status != models.ModerationFlagged {
		t.Errorf("Unexpected verdict %+v", v)
	}
	if len(v.Flags) != 1 || v.Flags[0].Category != "nudity" || v.Flags[0].Severity != models.SeverityHigh {
		t.Errorf("Expected one nudity flag, got %+v", v.Flags)
	}
}
