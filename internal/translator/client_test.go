package translator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/retry"
)

func testClient() *Client {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(&http.Client{Timeout: 5 * time.Second}, log)
}

func snapshotFor(baseURL string) *config.Snapshot {
	return &config.Snapshot{
		OpenAIBaseURL:     baseURL,
		OpenAIModel:       "gpt-4o-mini",
		OpenAIAPIKey:      "sk-test",
		OpenAIMaxTokens:   1000,
		OpenAITemperature: 0.7,
	}
}

func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestClient_Translate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(chatReply(`{"translated_title": "标题", "translated_body": "正文", "hashtags": ["新闻", "本地"]}`)))
	}))
	defer server.Close()

	tr, err := testClient().Translate(context.Background(), snapshotFor(server.URL), "タイトル", "本文")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(1000) {
		t.Errorf("max_tokens = %v, want 1000", gotBody["max_tokens"])
	}
	if tr.Title != "标题" || tr.Body != "正文" {
		t.Errorf("Translate() = %+v", tr)
	}
	if len(tr.Hashtags) != 2 {
		t.Errorf("hashtags = %v, want 2 entries", tr.Hashtags)
	}
}

func TestClient_TranslateStripsCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "Here is the translation:\n```json\n{\"translated_title\": \"标题\", \"translated_body\": \"正文\", \"hashtags\": [\"新闻\"]}\n```"
		_, _ = w.Write([]byte(chatReply(content)))
	}))
	defer server.Close()

	tr, err := testClient().Translate(context.Background(), snapshotFor(server.URL), "t", "b")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if tr.Title != "标题" {
		t.Errorf("Title = %q, want 标题", tr.Title)
	}
}

func TestClient_TranslateMalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatReply("sorry, I cannot do that")))
	}))
	defer server.Close()

	_, err := testClient().Translate(context.Background(), snapshotFor(server.URL), "t", "b")
	if err == nil {
		t.Fatal("Translate() error = nil, want error for malformed content")
	}
}

func TestClient_TranslateMissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatReply(`{"translated_title": "", "translated_body": "", "hashtags": []}`)))
	}))
	defer server.Close()

	_, err := testClient().Translate(context.Background(), snapshotFor(server.URL), "t", "b")
	if err == nil {
		t.Fatal("Translate() error = nil, want error for empty translation")
	}
}

func TestClient_TranslateAuthErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	calls := 0
	err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "translate", func(ctx context.Context) error {
		calls++
		_, trErr := testClient().Translate(ctx, snapshotFor(server.URL), "t", "b")
		return trErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (401 must not be retried)", calls)
	}
}

func TestClient_TranslateServerErrorIsRetryable(t *testing.T) {
	failures := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures < 2 {
			failures++
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(chatReply(`{"translated_title": "标题", "translated_body": "正文", "hashtags": ["新闻"]}`)))
	}))
	defer server.Close()

	err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "translate", func(ctx context.Context) error {
		_, trErr := testClient().Translate(ctx, snapshotFor(server.URL), "t", "b")
		return trErr
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if failures != 2 {
		t.Errorf("failures served = %d, want 2", failures)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced without language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"object with prose around", `note {"a": {"b": 2}} done`, `{"a": {"b": 2}}`},
		{"no object", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.in); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClient_TranslateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	_, err := testClient().Translate(context.Background(), snapshotFor(server.URL), "t", "b")
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("Translate() error = %v, want no-choices error", err)
	}
}
