package stats

import (
	"fmt"
	"sync"
	"time"
)

// Tracker накапливает счётчики работы процесса для команды /stats.
// Счётчики живут только в памяти и обнуляются при перезапуске.
type Tracker struct {
	mu        sync.Mutex
	startedAt time.Time
	clock     func() time.Time

	fetchOK       int
	fetchFail     int
	translateOK   int
	translateFail int
	postOK        int
	postFail      int
	keywordSkips  int
}

// New создаёт трекер. clock подменяется в тестах.
func New(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{startedAt: clock(), clock: clock}
}

func (t *Tracker) FetchSucceeded()     { t.inc(&t.fetchOK) }
func (t *Tracker) FetchFailed()        { t.inc(&t.fetchFail) }
func (t *Tracker) TranslateSucceeded() { t.inc(&t.translateOK) }
func (t *Tracker) TranslateFailed()    { t.inc(&t.translateFail) }
func (t *Tracker) PostSucceeded()      { t.inc(&t.postOK) }
func (t *Tracker) PostFailed()         { t.inc(&t.postFail) }
func (t *Tracker) KeywordSkipped()     { t.inc(&t.keywordSkips) }

func (t *Tracker) inc(counter *int) {
	t.mu.Lock()
	*counter++
	t.mu.Unlock()
}

// Counters — слепок счётчиков для тестов и отчёта.
type Counters struct {
	FetchOK, FetchFail         int
	TranslateOK, TranslateFail int
	PostOK, PostFail           int
	KeywordSkips               int
}

// Snapshot возвращает текущие значения счётчиков.
func (t *Tracker) Snapshot() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Counters{
		FetchOK:       t.fetchOK,
		FetchFail:     t.fetchFail,
		TranslateOK:   t.translateOK,
		TranslateFail: t.translateFail,
		PostOK:        t.postOK,
		PostFail:      t.postFail,
		KeywordSkips:  t.keywordSkips,
	}
}

// Summary формирует текст ответа на /stats. published и skipped —
// накопленные значения из файла дедупликации.
func (t *Tracker) Summary(published, skipped int) string {
	c := t.Snapshot()

	t.mu.Lock()
	uptime := t.clock().Sub(t.startedAt).Round(time.Second)
	t.mu.Unlock()

	return fmt.Sprintf(
		"Uptime: %s\n"+
			"Fetches: %d ok / %d failed\n"+
			"Translations: %d ok / %d failed\n"+
			"Posts: %d ok / %d failed\n"+
			"Keyword skips this run: %d\n"+
			"Recorded total: %d published, %d skipped",
		uptime,
		c.FetchOK, c.FetchFail,
		c.TranslateOK, c.TranslateFail,
		c.PostOK, c.PostFail,
		c.KeywordSkips,
		published, skipped,
	)
}
