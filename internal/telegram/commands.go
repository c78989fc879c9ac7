package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maine/yahoo_news_bot/internal/config"
)

const (
	// pollTimeout — long-poll таймаут getUpdates в секундах.
	pollTimeout = 30
	// pollErrorDelay — пауза перед повтором после ошибки getUpdates.
	pollErrorDelay = 5 * time.Second
)

// StatsReporter отдаёт текст отчёта для команды /stats.
type StatsReporter interface {
	StatsText() string
}

// CommandListener обслуживает входящие команды бота. Поддерживается
// только /stats, доступ ограничен списком authorized_user_ids
// (пустой список — без ограничений).
type CommandListener struct {
	newClient func(token string) BotClient
	cfg       func() *config.Snapshot
	stats     StatsReporter
	log       *slog.Logger
	offset    int64
}

// NewCommandListener создаёт обработчик команд.
func NewCommandListener(newClient func(token string) BotClient, cfg func() *config.Snapshot, stats StatsReporter, log *slog.Logger) *CommandListener {
	if newClient == nil {
		newClient = func(token string) BotClient { return NewClient(token) }
	}
	return &CommandListener{
		newClient: newClient,
		cfg:       cfg,
		stats:     stats,
		log:       log,
	}
}

// Run опрашивает getUpdates до отмены контекста.
func (l *CommandListener) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		cfg := l.cfg()
		client := l.newClient(cfg.TelegramBotToken)

		updates, err := client.GetUpdates(ctx, l.offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollErrorDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= l.offset {
				l.offset = update.UpdateID + 1
			}
			l.handleUpdate(ctx, client, cfg, update)
		}
	}
}

func (l *CommandListener) handleUpdate(ctx context.Context, client BotClient, cfg *config.Snapshot, update Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	command := strings.TrimSpace(msg.Text)
	if command != "/stats" && !strings.HasPrefix(command, "/stats@") {
		return
	}

	chatID := fmt.Sprintf("%d", msg.Chat.ID)

	if !isAuthorized(msg.From.ID, cfg.AuthorizedUserIDs) {
		l.log.Warn("unauthorized stats request", "user_id", msg.From.ID, "username", msg.From.Username)
		if _, err := client.SendMessage(ctx, chatID, "You are not authorized to use this command.", ""); err != nil {
			l.log.Warn("failed to send refusal", "error", err)
		}
		return
	}

	if _, err := client.SendMessage(ctx, chatID, l.stats.StatsText(), ""); err != nil {
		l.log.Warn("failed to send stats reply", "error", err)
		return
	}
	l.log.Info("stats reported", "user_id", msg.From.ID)
}

// isAuthorized проверяет пользователя по списку разрешённых.
// Пустой список означает отсутствие ограничений.
func isAuthorized(userID int64, allowed []int64) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == userID {
			return true
		}
	}
	return false
}
