package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/news"
)

// mockBotClient реализует BotClient через подменяемые функции.
type mockBotClient struct {
	sendMessageFunc func(ctx context.Context, chatID, text, parseMode string) (int64, error)
	getUpdatesFunc  func(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

func (m *mockBotClient) SendMessage(ctx context.Context, chatID, text, parseMode string) (int64, error) {
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, chatID, text, parseMode)
	}
	return 1, nil
}

func (m *mockBotClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	if m.getUpdatesFunc != nil {
		return m.getUpdatesFunc(ctx, offset, timeout)
	}
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func posterWith(mock *mockBotClient) *Poster {
	return NewPoster(func(token string) BotClient { return mock }, testLogger())
}

func channelSnapshot() *config.Snapshot {
	return &config.Snapshot{
		TelegramBotToken:  "test-token",
		TelegramChannelID: "@channel",
	}
}

func TestPoster_Publish(t *testing.T) {
	var gotChatID, gotText, gotParseMode string
	mock := &mockBotClient{
		sendMessageFunc: func(ctx context.Context, chatID, text, parseMode string) (int64, error) {
			gotChatID = chatID
			gotText = text
			gotParseMode = parseMode
			return 777, nil
		},
	}

	article := news.Article{URL: "https://news.yahoo.co.jp/articles/a", Title: "orig"}
	tr := news.Translation{Title: "标题", Body: "正文内容", Hashtags: []string{"新闻", "本地"}}

	messageID, err := posterWith(mock).Publish(context.Background(), channelSnapshot(), article, tr)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if messageID != 777 {
		t.Errorf("messageID = %d, want 777", messageID)
	}
	if gotChatID != "@channel" {
		t.Errorf("chatID = %q, want @channel", gotChatID)
	}
	if gotParseMode != "MarkdownV2" {
		t.Errorf("parseMode = %q, want MarkdownV2", gotParseMode)
	}
	for _, want := range []string{"*标题*", "正文内容", "\\#新闻", "\\#本地", "原文链接", article.URL} {
		if !strings.Contains(gotText, want) {
			t.Errorf("message should contain %q, got:\n%s", want, gotText)
		}
	}
}

func TestBuildMessage_Truncation(t *testing.T) {
	longBody := strings.Repeat("长", 6000)
	article := news.Article{URL: "https://news.yahoo.co.jp/articles/a"}
	tr := news.Translation{Title: "标题", Body: longBody, Hashtags: []string{"新闻"}}

	message := buildMessage(article, tr)

	if got := len([]rune(message)); got > maxMessageRunes {
		t.Errorf("message length = %d runes, want <= %d", got, maxMessageRunes)
	}
	if !strings.Contains(message, "未完") {
		t.Error("truncated message should carry the truncation notice")
	}
	if !strings.Contains(message, "原文链接") {
		t.Error("truncated message must keep the source link")
	}
	if !strings.Contains(message, "\\#新闻") {
		t.Error("truncated message must keep the hashtag line")
	}
}

func TestBuildMessage_ShortBodyNotTruncated(t *testing.T) {
	article := news.Article{URL: "https://news.yahoo.co.jp/articles/a"}
	tr := news.Translation{Title: "标题", Body: "短文", Hashtags: nil}

	message := buildMessage(article, tr)
	if strings.Contains(message, truncationNotice) {
		t.Error("short message must not carry the truncation notice")
	}
}

func TestBuildMessage_PublicationTime(t *testing.T) {
	article := news.Article{URL: "https://news.yahoo.co.jp/articles/a", PubTime: "2026-08-26T01:02:03Z"}
	tr := news.Translation{Title: "标题", Body: "正文", Hashtags: []string{"新闻"}}

	message := buildMessage(article, tr)

	// UTC 01:02 соответствует 10:02 JST; дефисы экранированы.
	if !strings.Contains(message, `_2026\-08\-26 10:02 JST_`) {
		t.Errorf("message should carry the publication time in italics, got:\n%s", message)
	}
}

func TestBuildMessage_PublicationTimeWithoutZone(t *testing.T) {
	article := news.Article{URL: "https://e.example/a", PubTime: "2026-08-26 10:02"}
	tr := news.Translation{Title: "t", Body: "b"}

	message := buildMessage(article, tr)
	// Время без зоны уже в JST и не должно сдвигаться.
	if !strings.Contains(message, `_2026\-08\-26 10:02 JST_`) {
		t.Errorf("zone-less time must not be shifted, got:\n%s", message)
	}
}

func TestBuildMessage_UnparseablePublicationTime(t *testing.T) {
	article := news.Article{URL: "https://e.example/a", PubTime: "昨日 12:00"}
	tr := news.Translation{Title: "t", Body: "b"}

	message := buildMessage(article, tr)
	if !strings.Contains(message, "_昨日 12:00_") {
		t.Errorf("unrecognized time should be rendered as-is, got:\n%s", message)
	}
}

func TestBuildMessage_NoPublicationTime(t *testing.T) {
	article := news.Article{URL: "https://e.example/a"}
	tr := news.Translation{Title: "t", Body: "b"}

	message := buildMessage(article, tr)
	if strings.Contains(message, "JST") {
		t.Errorf("message without PubTime should carry no timestamp, got:\n%s", message)
	}
}

func TestBuildMessage_OversizedTagsDropped(t *testing.T) {
	article := news.Article{URL: "https://e.example/a"}
	tr := news.Translation{
		Title:    "标题",
		Body:     "短文",
		Hashtags: []string{strings.Repeat("长", 5000)},
	}

	message := buildMessage(article, tr)

	if got := len([]rune(message)); got > maxMessageRunes {
		t.Fatalf("message length = %d runes, want <= %d", got, maxMessageRunes)
	}
	if strings.Contains(message, "\\#") {
		t.Error("oversized tag line must be dropped entirely")
	}
	if !strings.Contains(message, "原文链接") {
		t.Error("message must keep the source link")
	}
}

func TestBuildMessage_OversizedTitleStillFits(t *testing.T) {
	article := news.Article{URL: "https://e.example/a", PubTime: "2026-08-26 10:02"}
	tr := news.Translation{Title: strings.Repeat("长", 6000)}

	message := buildMessage(article, tr)

	if got := len([]rune(message)); got > maxMessageRunes {
		t.Fatalf("message length = %d runes, want <= %d", got, maxMessageRunes)
	}
	if !strings.Contains(message, "原文链接") {
		t.Error("message must keep the source link")
	}
	if strings.Count(message, "*") != 2 {
		t.Errorf("shrunk title must stay a closed bold entity, got:\n%s", message)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a.b!c", `a\.b\!c`},
		{"x_y*z", `x\_y\*z`},
		{"[link](url)", `\[link\]\(url\)`},
		{"50% + 10 = 60", `50% \+ 10 \= 60`},
		{"回落|恢复", `回落\|恢复`},
	}
	for _, tt := range tests {
		if got := EscapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildMessage_HashtagPrefixNormalized(t *testing.T) {
	article := news.Article{URL: "https://e.example/a"}
	tr := news.Translation{Title: "t", Body: "b", Hashtags: []string{"#已有前缀", " 空格 ", ""}}

	message := buildMessage(article, tr)
	if strings.Contains(message, "\\#\\#") {
		t.Error("hashtag prefix must not be doubled")
	}
	if !strings.Contains(message, "\\#已有前缀") {
		t.Errorf("message should contain normalized hashtag, got:\n%s", message)
	}
}
