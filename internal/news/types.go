package news

import "time"

// Article описывает статью из рейтинга. Живёт только в рамках одного тика.
type Article struct {
	URL       string
	Title     string
	Rank      int
	Body      string
	PubTime   string
	FetchedAt time.Time
}

// Translation — результат перевода статьи языковой моделью.
type Translation struct {
	Title    string   `json:"translated_title"`
	Body     string   `json:"translated_body"`
	Hashtags []string `json:"hashtags"`
}

// DedupRecord — запись об уже обработанной статье в файле дедупликации.
// Published=false означает, что статья отсеяна фильтром, но всё равно
// зафиксирована и повторно рассматриваться не будет.
type DedupRecord struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	RecordedAt time.Time `json:"recorded_at"`
	Published  bool      `json:"published"`
	MessageID  int64     `json:"message_id,omitempty"`
}

// Outcome — терминальное состояние обработки одной статьи.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomePublished
	OutcomeSkippedFiltered
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeSkippedFiltered:
		return "skipped-filtered"
	default:
		return "failed"
	}
}
