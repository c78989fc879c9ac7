package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/news"
)

// yahooNewsPrefix — публичный префикс статей, который подменяется
// на url_override_base при работе через зеркало.
const yahooNewsPrefix = "https://news.yahoo.co.jp/"

// Client ходит в скрейпер-API за списком рейтинга и телом статьи.
type Client struct {
	client *http.Client
	clock  func() time.Time
	log    *slog.Logger
}

// NewClient создаёт клиента. clock подменяется в тестах.
func NewClient(httpClient *http.Client, clock func() time.Time, log *slog.Logger) *Client {
	if clock == nil {
		clock = time.Now
	}
	return &Client{client: httpClient, clock: clock, log: log}
}

type rankingEnvelope struct {
	Status string         `json:"status"`
	Data   []rankingEntry `json:"data"`
}

type rankingEntry struct {
	Rank  int    `json:"rank"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type articleEnvelope struct {
	Status string      `json:"status"`
	Data   articleData `json:"data"`
}

type articleData struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	PublicationTime string `json:"publication_time"`
}

// Ranking собирает статьи со всех настроенных рейтингов, сохраняя порядок
// и отбрасывая повторяющиеся URL между рейтингами.
func (c *Client) Ranking(ctx context.Context, cfg *config.Snapshot) ([]news.Article, error) {
	seen := make(map[string]struct{})
	var articles []news.Article

	for _, rankingURL := range cfg.RankingURLs {
		entries, err := c.fetchRanking(ctx, cfg.APIBaseURL, rankingURL)
		if err != nil {
			return nil, fmt.Errorf("fetch ranking %s: %w", rankingURL, err)
		}
		c.log.Debug("ranking fetched", "ranking_url", rankingURL, "entries", len(entries))

		for _, entry := range entries {
			if _, ok := seen[entry.URL]; ok {
				continue
			}
			seen[entry.URL] = struct{}{}
			articles = append(articles, news.Article{
				URL:       entry.URL,
				Title:     entry.Title,
				Rank:      entry.Rank,
				FetchedAt: c.clock(),
			})
		}
	}

	return articles, nil
}

func (c *Client) fetchRanking(ctx context.Context, apiBaseURL, rankingURL string) ([]rankingEntry, error) {
	endpoint := apiBaseURL + "/yahoo/ranking?url=" + url.QueryEscape(rankingURL)

	body, _, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var envelope rankingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse ranking response: %w", err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("ranking response status %q", envelope.Status)
	}
	return envelope.Data, nil
}

// Body получает полный текст статьи. URL предварительно переписывается
// по правилу подмены базы. Если API вместо JSON отдаёт HTML, текст
// извлекается из абзацев документа.
func (c *Client) Body(ctx context.Context, cfg *config.Snapshot, articleURL string) (string, string, error) {
	target := OverrideURL(cfg.URLOverrideBase, articleURL)
	endpoint := cfg.APIBaseURL + "/yahoo/article?url=" + url.QueryEscape(target)

	body, contentType, err := c.get(ctx, endpoint)
	if err != nil {
		return "", "", err
	}

	if strings.Contains(contentType, "text/html") {
		text, err := extractText(body)
		if err != nil {
			return "", "", fmt.Errorf("extract article text: %w", err)
		}
		return text, "", nil
	}

	var envelope articleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", "", fmt.Errorf("parse article response: %w", err)
	}
	if envelope.Status != "success" {
		return "", "", fmt.Errorf("article response status %q", envelope.Status)
	}
	if strings.TrimSpace(envelope.Data.Body) == "" {
		return "", "", fmt.Errorf("article response has empty body")
	}
	return envelope.Data.Body, envelope.Data.PublicationTime, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("feed api status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// OverrideURL подменяет публичный префикс статьи на настроенную базу.
// Пустая база оставляет URL без изменений.
func OverrideURL(overrideBase, articleURL string) string {
	if overrideBase == "" {
		return articleURL
	}
	if !strings.HasPrefix(articleURL, yahooNewsPrefix) {
		return articleURL
	}
	return overrideBase + strings.TrimPrefix(articleURL, yahooNewsPrefix)
}

func extractText(htmlBody []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBody)))
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return "", fmt.Errorf("no paragraphs found in document")
	}
	return strings.Join(parts, "\n"), nil
}
