package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/maine/yahoo_news_bot/internal/news"
)

const (
	// lockRetryDelay — шаг опроса при ожидании файловой блокировки.
	lockRetryDelay = 100 * time.Millisecond
	// lockTimeout — предел ожидания блокировки на одну запись.
	lockTimeout = 10 * time.Second
)

// ErrCorrupt возвращается, когда файл дедупликации не разбирается как JSON.
// История публикаций в этом случае не отбрасывается молча: запуск с
// повреждённым файлом привёл бы к массовым повторным публикациям.
var ErrCorrupt = errors.New("dedup file is corrupt")

// FileStore хранит записи об обработанных статьях в JSON-файле.
// Запись сериализуется межпроцессной блокировкой: перед каждым
// добавлением файл перечитывается, поэтому два процесса с общим
// файлом не теряют обновления друг друга.
type FileStore struct {
	path string
	lock *flock.Flock
	log  *slog.Logger

	mu   sync.Mutex
	seen map[string]news.DedupRecord
}

// NewFileStore создаёт стор поверх указанного файла.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
		seen: make(map[string]news.DedupRecord),
	}
}

// Load читает файл и наполняет множество известных идентификаторов.
// Отсутствующий файл трактуется как пустая история.
func (s *FileStore) Load(ctx context.Context) error {
	records, err := s.readRecords()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]news.DedupRecord, len(records))
	for _, rec := range records {
		s.seen[rec.URL] = rec
	}
	s.log.Info("dedup store loaded", "path", s.path, "records", len(records))
	return nil
}

// Contains сообщает, была ли статья уже терминально обработана.
func (s *FileStore) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[url]
	return ok
}

// Counts возвращает число опубликованных и отсеянных записей.
func (s *FileStore) Counts() (published, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.seen {
		if rec.Published {
			published++
		} else {
			skipped++
		}
	}
	return published, skipped
}

// Record дописывает запись в файл: эксклюзивная блокировка, перечитывание
// актуального содержимого, добавление, атомарная перезапись через временный
// файл. Падение между шагами никогда не оставляет файл усечённым.
func (s *FileStore) Record(ctx context.Context, rec news.DedupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire dedup lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire dedup lock: timed out after %v", lockTimeout)
	}
	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.log.Error("failed to release dedup lock", "error", unlockErr)
		}
	}()

	records, err := s.readRecords()
	if err != nil {
		return err
	}

	for _, existing := range records {
		if existing.URL == rec.URL {
			// Другой процесс успел записать эту статью раньше нас.
			s.seen[existing.URL] = existing
			return nil
		}
	}

	records = append(records, rec)
	if err := s.writeRecords(records); err != nil {
		return err
	}

	s.seen[rec.URL] = rec
	return nil
}

func (s *FileStore) readRecords() ([]news.DedupRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dedup file: %w", err)
	}

	var records []news.DedupRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", s.path, ErrCorrupt, err)
	}
	return records, nil
}

func (s *FileStore) writeRecords(records []news.DedupRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dedup records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dedup directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp dedup file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp dedup file: %w", err)
	}

	return nil
}
