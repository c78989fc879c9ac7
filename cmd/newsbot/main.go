package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/maine/yahoo_news_bot/internal/app"
	"github.com/maine/yahoo_news_bot/internal/config"
	"github.com/maine/yahoo_news_bot/internal/feed"
	"github.com/maine/yahoo_news_bot/internal/logging"
	"github.com/maine/yahoo_news_bot/internal/stats"
	"github.com/maine/yahoo_news_bot/internal/store"
	"github.com/maine/yahoo_news_bot/internal/telegram"
	"github.com/maine/yahoo_news_bot/internal/translator"
)

const defaultConfigPath = "configs/config.yaml"

// statsReporter собирает текст для /stats из счётчиков процесса
// и накопленных записей файла дедупликации.
type statsReporter struct {
	tracker *stats.Tracker
	store   *store.FileStore
}

func (r *statsReporter) StatsText() string {
	published, skipped := r.store.Counts()
	return r.tracker.Summary(published, skipped)
}

func main() {
	configPath := os.Getenv("NEWSBOT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Ошибка конфигурации на старте фатальна: без обязательных
	// настроек процессу нечего делать.
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logs := logging.Setup(cfg.LogLevel, cfg.LogLevels)
	mainLog := logs.For("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dedupStore := store.NewFileStore(cfg.PostedArticlesFile, logs.For("store"))
	if err := dedupStore.Load(ctx); err != nil {
		log.Fatalf("load dedup store: %v", err)
	}

	provider := config.NewProvider(configPath, cfg, logs.For("config"))

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	fetcher := feed.NewClient(httpClient, nil, logs.For("feed"))
	trans := translator.NewClient(httpClient, logs.For("translator"))
	poster := telegram.NewPoster(nil, logs.For("telegram"))
	tracker := stats.New(nil)

	pipeline := app.NewPipeline(app.PipelineDeps{
		Fetcher:    fetcher,
		Translator: trans,
		Publisher:  poster,
		Store:      dedupStore,
		Stats:      tracker,
		Config:     provider,
		Log:        logs.For("pipeline"),
	})

	scheduler := app.NewScheduler(
		pipeline.RunTick,
		func() time.Duration { return provider.Current().Interval() },
		logs.For("scheduler"),
	)

	listener := telegram.NewCommandListener(
		nil,
		provider.Current,
		&statsReporter{tracker: tracker, store: dedupStore},
		logs.For("commands"),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := provider.Watch(ctx); err != nil {
			mainLog.Error("config watcher exited", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Run(ctx)
	}()

	mainLog.Info("newsbot started", "config", configPath, "interval", cfg.Interval().String())
	scheduler.Run(ctx)

	wg.Wait()
	mainLog.Info("shutdown complete")
}
