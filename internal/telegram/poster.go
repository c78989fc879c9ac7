package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/news"
)

const (
	// maxMessageRunes — лимит Telegram на длину одного сообщения.
	maxMessageRunes = 4096
	// truncationNotice дописывается к обрезанному тексту.
	truncationNotice = "(未完，请看原文)"
)

// markdownV2Specials — символы, требующие экранирования в MarkdownV2.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

// jst — часовой пояс публикации исходных статей.
var jst = time.FixedZone("JST", 9*60*60)

// Poster публикует переведённые статьи в канал.
// Клиент создаётся на каждый вызов из токена текущего слепка,
// чтобы смена токена подхватывалась без перезапуска.
type Poster struct {
	newClient func(token string) BotClient
	log       *slog.Logger
}

// NewPoster создаёт публикатора. newClient подменяется в тестах.
func NewPoster(newClient func(token string) BotClient, log *slog.Logger) *Poster {
	if newClient == nil {
		newClient = func(token string) BotClient { return NewClient(token) }
	}
	return &Poster{newClient: newClient, log: log}
}

// Publish отправляет оформленный пост в канал и возвращает message_id.
func (p *Poster) Publish(ctx context.Context, cfg *config.Snapshot, article news.Article, tr news.Translation) (int64, error) {
	message := buildMessage(article, tr)

	client := p.newClient(cfg.TelegramBotToken)
	messageID, err := client.SendMessage(ctx, cfg.TelegramChannelID, message, "MarkdownV2")
	if err != nil {
		return 0, fmt.Errorf("send channel post: %w", err)
	}

	p.log.Info("article published", "url", article.URL, "message_id", messageID)
	return messageID, nil
}

// buildMessage собирает пост: жирный заголовок, время публикации,
// тело, хэштеги, ссылка. Если пост не влезает в лимит Telegram,
// ужимается тело, затем жертвуем хэштегами, телом и временем,
// в крайнем случае обрезается сам заголовок — отправка обязана
// пройти, иначе статья вечно повторялась бы с "message is too long".
func buildMessage(article news.Article, tr news.Translation) string {
	title := "*" + EscapeMarkdownV2(tr.Title) + "*"
	timePart := timeLine(article.PubTime)
	link := fmt.Sprintf("[原文链接](%s)", escapeLinkURL(article.URL))

	var tags []string
	for _, tag := range tr.Hashtags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		tags = append(tags, "\\#"+EscapeMarkdownV2(tag))
	}
	tagLine := strings.Join(tags, " ")

	body := EscapeMarkdownV2(tr.Body)
	message := assemble(title, timePart, body, tagLine, link)
	if utf8.RuneCountInString(message) <= maxMessageRunes {
		return message
	}

	if shrunk, ok := shrinkBody(body, title, timePart, tagLine, link); ok {
		return assemble(title, timePart, shrunk, tagLine, link)
	}
	if shrunk, ok := shrinkBody(body, title, timePart, "", link); ok {
		return assemble(title, timePart, shrunk, "", link)
	}

	message = assemble(title, timePart, "", "", link)
	if utf8.RuneCountInString(message) <= maxMessageRunes {
		return message
	}

	// Не влезают даже заголовок со ссылкой: ужимаем текст заголовка.
	titleRunes := []rune(EscapeMarkdownV2(tr.Title))
	budget := maxMessageRunes - utf8.RuneCountInString(assemble("**", "", "", "", link))
	if budget < 1 {
		budget = 1
	}
	if budget > len(titleRunes) {
		budget = len(titleRunes)
	}
	title = "*" + strings.TrimRight(string(titleRunes[:budget]), "\\") + "*"
	return assemble(title, "", "", "", link)
}

// shrinkBody обрезает тело так, чтобы пост с остальными частями влез
// в лимит. Возвращает false, когда под тело не остаётся места.
func shrinkBody(body, title, timePart, tagLine, link string) (string, bool) {
	notice := EscapeMarkdownV2(truncationNotice)
	// "+2" — разделитель "\n\n" перед телом, "+1" — перенос перед notice.
	overhead := utf8.RuneCountInString(assemble(title, timePart, "", tagLine, link)) + 2
	budget := maxMessageRunes - overhead - utf8.RuneCountInString(notice) - 1
	if budget <= 0 {
		return "", false
	}

	bodyRunes := []rune(body)
	if budget >= len(bodyRunes) {
		// Тело целиком помещается без урезания (лимит выбрали другие части).
		return body, true
	}
	// Срез мог попасть на хвостовой '\' из escape-последовательности.
	truncated := strings.TrimRight(strings.TrimSpace(string(bodyRunes[:budget])), "\\")
	return truncated + "\n" + notice, true
}

// timeLine форматирует время публикации курсивом в поясе JST.
// Нераспознанный формат отдаётся как есть, лишь бы экранированным.
func timeLine(pubTime string) string {
	pubTime = strings.TrimSpace(pubTime)
	if pubTime == "" {
		return ""
	}

	formatted := pubTime
	if ts, err := time.Parse(time.RFC3339, pubTime); err == nil {
		formatted = ts.In(jst).Format("2006-01-02 15:04 JST")
	} else {
		// Время без зоны API отдаёт уже в JST.
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
			if ts, err := time.ParseInLocation(layout, pubTime, jst); err == nil {
				formatted = ts.Format("2006-01-02 15:04 JST")
				break
			}
		}
	}
	return "_" + EscapeMarkdownV2(formatted) + "_"
}

func assemble(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}

// EscapeMarkdownV2 экранирует спецсимволы разметки MarkdownV2.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL экранирует только символы, запрещённые внутри (...) ссылки.
func escapeLinkURL(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, ")", "\\)")
}
