package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/news"
	"github.com/maine/yahoo_news_bot/internal/retry"
)

// systemPrompt требует от модели строгий JSON без пояснений:
// перевод заголовка и текста на упрощённый китайский плюс хэштеги.
const systemPrompt = `You are a professional news translator. Translate the given Japanese news article into Simplified Chinese. Respond with a single JSON object and nothing else, in the exact form {"translated_title": "...", "translated_body": "...", "hashtags": ["...", "..."]}. The hashtags are 2-4 short Simplified Chinese topic labels without the # prefix.`

// Client ходит в OpenAI-совместимый endpoint chat completions.
// Базовый URL, модель и ключ берутся из слепка конфигурации при каждом
// вызове, поэтому горячая перезагрузка подхватывается со следующего тика.
type Client struct {
	client *http.Client
	log    *slog.Logger
}

// NewClient создаёт клиента перевода.
func NewClient(httpClient *http.Client, log *slog.Logger) *Client {
	return &Client{client: httpClient, log: log}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Translate отправляет статью модели и разбирает JSON-ответ.
func (c *Client) Translate(ctx context.Context, cfg *config.Snapshot, title, body string) (news.Translation, error) {
	userContent := fmt.Sprintf("Title: %s\n\nBody:\n%s", title, body)

	payload := chatRequest{
		Model: cfg.OpenAIModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return news.Translation{}, fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := strings.TrimSuffix(cfg.OpenAIBaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return news.Translation{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.OpenAIAPIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return news.Translation{}, fmt.Errorf("call model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("model endpoint status %d: %s", resp.StatusCode, string(snippet))
		// Повторять 4xx (кроме 429) бессмысленно: запрос или ключ плохи.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return news.Translation{}, retry.Permanent(err)
		}
		return news.Translation{}, err
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return news.Translation{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return news.Translation{}, fmt.Errorf("chat response has no choices")
	}

	tr, err := parseTranslation(chat.Choices[0].Message.Content)
	if err != nil {
		return news.Translation{}, err
	}
	c.log.Debug("article translated", "model", cfg.OpenAIModel, "hashtags", len(tr.Hashtags))
	return tr, nil
}

// parseTranslation разбирает содержимое ответа модели. Модель иногда
// оборачивает JSON в markdown code block — его приходится срезать.
func parseTranslation(content string) (news.Translation, error) {
	var tr news.Translation
	if err := json.Unmarshal([]byte(content), &tr); err != nil {
		cleaned := extractJSONObject(content)
		if cleaned == "" {
			return news.Translation{}, fmt.Errorf("unmarshal translation: %w (raw: %s)", err, content)
		}
		if err := json.Unmarshal([]byte(cleaned), &tr); err != nil {
			return news.Translation{}, fmt.Errorf("unmarshal cleaned translation: %w (raw: %s)", err, content)
		}
	}

	if strings.TrimSpace(tr.Title) == "" || strings.TrimSpace(tr.Body) == "" {
		return news.Translation{}, fmt.Errorf("translation is missing title or body (raw: %s)", content)
	}
	return tr, nil
}

func extractJSONObject(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx != -1 {
		text = text[idx+len("```"):]
	}
	if end := strings.Index(text, "```"); end != -1 {
		text = text[:end]
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}
