package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay гасит серии событий, которые редакторы порождают
// при сохранении файла (truncate + write, либо rename поверх).
const debounceDelay = 200 * time.Millisecond

// Provider раздаёт текущий слепок конфигурации и подменяет его при
// изменении файла. Читатели никогда не блокируются и никогда не видят
// наполовину обновлённый слепок: подмена — атомарная замена указателя.
type Provider struct {
	path    string
	current atomic.Pointer[Snapshot]
	log     *slog.Logger
}

// NewProvider создаёт провайдера с уже загруженным начальным слепком.
func NewProvider(path string, initial *Snapshot, log *slog.Logger) *Provider {
	p := &Provider{path: path, log: log}
	p.current.Store(initial)
	return p
}

// Current возвращает последний полностью загруженный слепок.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Reload перечитывает файл и подменяет слепок, только если новый документ
// разобрался и прошёл валидацию. Некорректное обновление отбрасывается,
// прежний слепок остаётся действующим.
func (p *Provider) Reload() error {
	cfg, err := Load(p.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	p.current.Store(cfg)
	return nil
}

// Watch следит за файлом конфигурации до отмены контекста.
// Ошибки перезагрузки логируются и не прерывают наблюдение.
func (p *Provider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Следим за директорией: редакторы часто заменяют файл через rename,
	// и подписка на сам файл теряется после первой замены.
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	base := filepath.Base(p.path)
	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				debounce.Reset(debounceDelay)
			}
			pending = debounce.C

		case <-pending:
			pending = nil
			if err := p.Reload(); err != nil {
				p.log.Error("config reload rejected, keeping previous snapshot", "error", err)
				continue
			}
			p.log.Info("config reloaded", "path", p.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Error("config watcher error", "error", err)
		}
	}
}
