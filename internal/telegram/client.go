package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maine/yahoo_news_bot/internal/retry"
)

// BotClient определяет интерфейс для работы с Telegram Bot API.
// Это позволяет легко создавать моки для тестирования.
type BotClient interface {
	SendMessage(ctx context.Context, chatID string, text string, parseMode string) (int64, error)
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

// Client инкапсулирует работу с Telegram Bot API.
type Client struct {
	token  string
	client *http.Client
	apiURL string
}

// Убеждаемся, что Client реализует интерфейс BotClient.
var _ BotClient = (*Client)(nil)

// NewClient создаёт клиента. token обязателен.
func NewClient(token string) *Client {
	return &Client{
		token: token,
		client: &http.Client{
			Timeout: 45 * time.Second, // дольше long-poll таймаута getUpdates
		},
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

// SendMessage отправляет текстовое сообщение и возвращает message_id.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, parseMode string) (int64, error) {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	var resp SendMessageResponse
	if err := c.post(ctx, "sendMessage", payload, &resp); err != nil {
		return 0, err
	}
	if !resp.OK || resp.Result == nil {
		err := fmt.Errorf("telegram sendMessage not ok: %s", resp.Description)
		if isPermanentSendError(resp.Description) {
			return 0, retry.Permanent(err)
		}
		return 0, err
	}
	return resp.Result.MessageID, nil
}

// GetUpdates получает входящие обновления, начиная с offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", offset))
	}
	if timeout <= 0 {
		timeout = 5
	}
	params.Set("timeout", fmt.Sprintf("%d", timeout))

	var resp GetUpdatesResponse
	if err := c.get(ctx, "getUpdates", params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok")
	}
	return resp.Result, nil
}

// isPermanentSendError распознаёт ошибки, при которых повтор не поможет
// (чат не найден, бот заблокирован, сообщение слишком длинное).
func isPermanentSendError(description string) bool {
	desc := strings.ToLower(description)
	permanent := []string{
		"chat not found",
		"bot was blocked",
		"user is deactivated",
		"message is too long",
		"can't parse entities",
		"bad request",
	}
	for _, marker := range permanent {
		if strings.Contains(desc, marker) {
			return true
		}
	}
	return false
}

func (c *Client) post(ctx context.Context, method string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("telegram api status %d", resp.StatusCode)
		}
		return nil
	}

	// Telegram кладёт описание ошибки в тело даже при 4xx,
	// поэтому тело разбираем до проверки статуса.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("telegram api status %d", resp.StatusCode)
		}
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out interface{}) error {
	u := c.apiURL + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
