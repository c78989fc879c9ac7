package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/filter"
	"github.com/maine/yahoo_news_bot/internal/news"
	"github.com/maine/yahoo_news_bot/internal/retry"
)

// defaultArticleDelay — пауза между статьями внутри тика, чтобы не
// долбить внешние сервисы очередями запросов.
const defaultArticleDelay = 5 * time.Second

// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// Fetcher получает список рейтинга и тело отдельной статьи.
type Fetcher interface {
	Ranking(ctx context.Context, cfg *config.Snapshot) ([]news.Article, error)
	Body(ctx context.Context, cfg *config.Snapshot, articleURL string) (body, pubTime string, err error)
}

// Translator переводит и суммаризирует статью.
type Translator interface {
	Translate(ctx context.Context, cfg *config.Snapshot, title, body string) (news.Translation, error)
}

// Publisher отправляет оформленный пост в канал и возвращает message_id.
type Publisher interface {
	Publish(ctx context.Context, cfg *config.Snapshot, article news.Article, tr news.Translation) (int64, error)
}

// DedupStore хранит терминально обработанные статьи.
type DedupStore interface {
	Contains(url string) bool
	Record(ctx context.Context, rec news.DedupRecord) error
}

// StatsRecorder накапливает счётчики для /stats.
type StatsRecorder interface {
	FetchSucceeded()
	FetchFailed()
	TranslateSucceeded()
	TranslateFailed()
	PostSucceeded()
	PostFailed()
	KeywordSkipped()
}

// PipelineDeps перечисляет зависимости пайплайна.
type PipelineDeps struct {
	Fetcher      Fetcher
	Translator   Translator
	Publisher    Publisher
	Store        DedupStore
	Stats        StatsRecorder
	Config       *config.Provider
	Clock        Clock
	Log          *slog.Logger
	ArticleDelay time.Duration
}

// Pipeline исполняет один тик: перечисление кандидатов, отсев уже
// обработанных, и для каждого нового — fetch → transform → filter →
// publish → record. Ошибка одной статьи не прерывает остальные.
type Pipeline struct {
	fetcher      Fetcher
	translator   Translator
	publisher    Publisher
	store        DedupStore
	stats        StatsRecorder
	config       *config.Provider
	clock        Clock
	log          *slog.Logger
	articleDelay time.Duration

	// Кэш переводов на случай неудачной публикации: следующий тик
	// повторяет только отправку, не тратя второй вызов модели.
	translations map[string]news.Translation
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	delay := deps.ArticleDelay
	if delay == 0 {
		delay = defaultArticleDelay
	}

	return &Pipeline{
		fetcher:      deps.Fetcher,
		translator:   deps.Translator,
		publisher:    deps.Publisher,
		store:        deps.Store,
		stats:        deps.Stats,
		config:       deps.Config,
		clock:        clock,
		log:          deps.Log,
		articleDelay: delay,
		translations: make(map[string]news.Translation),
	}
}

// RunTick исполняет один полный проход. Слепок конфигурации берётся
// один раз в начале и действует до конца тика.
func (p *Pipeline) RunTick(ctx context.Context) error {
	if err := p.validateDeps(); err != nil {
		return err
	}

	cfg := p.config.Current()
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		Jitter:      cfg.Retry.Jitter(),
	}

	p.log.Info("tick started", "rankings", len(cfg.RankingURLs))

	var articles []news.Article
	err := retry.Do(ctx, policy, "fetch ranking", func(ctx context.Context) error {
		var err error
		articles, err = p.fetcher.Ranking(ctx, cfg)
		return err
	})
	if err != nil {
		p.stats.FetchFailed()
		return fmt.Errorf("fetch ranking: %w", err)
	}
	p.stats.FetchSucceeded()
	p.log.Info("ranking fetched", "candidates", len(articles))

	p.evictStaleTranslations(articles)

	processed := 0
	for _, article := range articles {
		if p.store.Contains(article.URL) {
			p.log.Debug("already recorded, skipping", "url", article.URL)
			continue
		}

		if processed > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.articleDelay):
			}
		}
		processed++

		outcome := p.processArticle(ctx, cfg, policy, article)
		p.log.Info("article done", "url", article.URL, "rank", article.Rank, "outcome", outcome.String())
	}

	p.log.Info("tick finished", "processed", processed)
	return nil
}

// processArticle доводит одну статью до терминального состояния.
// Failed никогда не записывается в стор: статья будет повторена
// на следующем тике.
func (p *Pipeline) processArticle(ctx context.Context, cfg *config.Snapshot, policy retry.Policy, article news.Article) news.Outcome {
	tr, cached := p.translations[article.URL]
	if !cached {
		err := retry.Do(ctx, policy, "fetch article body", func(ctx context.Context) error {
			body, pubTime, err := p.fetcher.Body(ctx, cfg, article.URL)
			if err != nil {
				return err
			}
			article.Body = body
			article.PubTime = pubTime
			return nil
		})
		if err != nil {
			p.stats.FetchFailed()
			p.log.Error("article fetch failed", "url", article.URL, "error", err)
			return news.OutcomeFailed
		}
		p.stats.FetchSucceeded()

		err = retry.Do(ctx, policy, "translate article", func(ctx context.Context) error {
			var trErr error
			tr, trErr = p.translator.Translate(ctx, cfg, article.Title, article.Body)
			return trErr
		})
		if err != nil {
			p.stats.TranslateFailed()
			p.log.Error("article translation failed", "url", article.URL, "error", err)
			return news.OutcomeFailed
		}
		p.stats.TranslateSucceeded()
		p.translations[article.URL] = tr
	} else {
		p.log.Info("reusing cached translation", "url", article.URL)
	}

	if !filter.ShouldPublish(tr.Hashtags, cfg.SkipKeywords) {
		p.stats.KeywordSkipped()
		p.log.Info("article skipped by keyword filter", "url", article.URL, "hashtags", tr.Hashtags)
		p.record(ctx, article, tr, false, 0)
		return news.OutcomeSkippedFiltered
	}

	var messageID int64
	err := retry.Do(ctx, policy, "publish article", func(ctx context.Context) error {
		var pubErr error
		messageID, pubErr = p.publisher.Publish(ctx, cfg, article, tr)
		return pubErr
	})
	if err != nil {
		p.stats.PostFailed()
		// Перевод остаётся в кэше: следующий тик повторит только отправку.
		p.log.Error("article publish failed", "url", article.URL, "error", err)
		return news.OutcomeFailed
	}
	p.stats.PostSucceeded()

	p.record(ctx, article, tr, true, messageID)
	return news.OutcomePublished
}

// record фиксирует терминальный исход. Ошибка записи означает, что факт
// обработки мог не сохраниться: статья считается незаписанной и может
// быть опубликована повторно на следующем тике — это лучше, чем молча
// потерять запись.
func (p *Pipeline) record(ctx context.Context, article news.Article, tr news.Translation, published bool, messageID int64) {
	rec := news.DedupRecord{
		URL:        article.URL,
		Title:      article.Title,
		RecordedAt: p.clock(),
		Published:  published,
		MessageID:  messageID,
	}
	if err := p.store.Record(ctx, rec); err != nil {
		p.log.Error("failed to record article, it may be processed again", "url", article.URL, "error", err)
		return
	}
	delete(p.translations, article.URL)
}

// evictStaleTranslations выбрасывает из кэша переводы статей, выпавших
// из рейтинга: повторять их больше некому, а записи копились бы вечно.
func (p *Pipeline) evictStaleTranslations(articles []news.Article) {
	current := make(map[string]struct{}, len(articles))
	for _, article := range articles {
		current[article.URL] = struct{}{}
	}
	for url := range p.translations {
		if _, ok := current[url]; !ok {
			delete(p.translations, url)
		}
	}
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.fetcher == nil,
		p.translator == nil,
		p.publisher == nil,
		p.store == nil,
		p.stats == nil,
		p.config == nil,
		p.clock == nil,
		p.log == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}
