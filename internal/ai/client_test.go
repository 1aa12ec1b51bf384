package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"promptfinder/internal/config"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return newClient(config.OpenAIConfig{
		APIKey:          "sk-test",
		BaseURL:         url,
		VisionModel:     "gpt-4o-mini",
		ModerationModel: "omni-moderation-latest",
		Timeout:         timeout,
	}, &http.Client{}, zerolog.Nop())
}

func TestChat(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"flagged\":false}"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	out, err := client.Chat(context.Background(), ChatRequest{
		Messages:  []Message{{Role: "user", Content: []ContentPart{TextPart("hi"), ImagePart("https://cdn/x.jpg", "low")}}},
		MaxTokens: 500,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != `{"flagged":false}` {
		t.Errorf("Unexpected content %q", out)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens != 500 {
		t.Errorf("Expected default model and max tokens, got %+v", got)
	}
	if part := got.Messages[0].Content[1]; part.ImageURL == nil || part.ImageURL.Detail != "low" {
		t.Errorf("Expected image part with low detail, got %+v", part)
	}
}

func TestChatReturnsRefusalText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"I'm sorry, I can't assist with that."}}]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL, time.Second).Chat(context.Background(), ChatRequest{})
	if err != nil || !strings.Contains(out, "can't assist") {
		t.Errorf("Expected refusal text, got %q %v", out, err)
	}
}

func TestChatTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 50*time.Millisecond).Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if !IsOutage(err) {
		t.Error("Expected timeout to count as outage")
	}
}

func TestConnectionRefusedIsOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, time.Second).Moderate(context.Background(), "text")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, time.Second).Chat(context.Background(), ChatRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected APIError 400, got %v", err)
	}
	if IsOutage(err) {
		t.Error("Expected 400 not to count as outage")
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, _ = client.Chat(context.Background(), ChatRequest{})
	}
	_, err := client.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected open breaker to surface ErrUnavailable, got %v", err)
	}
	if calls != 5 {
		t.Errorf("Expected 5 upstream calls before opening, got %d", calls)
	}
}

func TestModerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moderations" {
			t.Errorf("Expected /moderations, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":[{"flagged":true,"categories":{"violence":true,"hate":false},"category_scores":{"violence":0.91,"hate":0.01}}]}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL, time.Second).Moderate(context.Background(), "text")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !res.Flagged || !res.Categories["violence"] || res.CategoryScores["violence"] != 0.91 {
		t.Errorf("Unexpected moderation result %+v", res)
	}
}

func TestDataURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngbytes"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	url, err := client.DataURL(context.Background(), server.URL+"/a.png", 1024)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if url != "data:image/png;base64,cG5nYnl0ZXM=" {
		t.Errorf("Unexpected data url %s", url)
	}

	if _, err := client.DataURL(context.Background(), server.URL+"/a.png", 4); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}
