package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultPostedFile      = "data/posted_articles.json"
	defaultIntervalMinutes = 10
	defaultMaxTokens       = 1000
	defaultTemperature     = 0.7
	defaultHTTPTimeoutSec  = 20
)

type (
	// Snapshot — неизменяемый слепок конфигурации. Один тик пайплайна
	// работает с одним слепком от начала до конца; новые значения
	// вступают в силу только со следующего тика.
	Snapshot struct {
		RankingURLs       []string `yaml:"ranking_urls"`
		APIBaseURL        string   `yaml:"api_base_url"`
		TelegramBotToken  string   `yaml:"telegram_bot_token"`
		TelegramChannelID string   `yaml:"telegram_channel_id"`
		OpenAIModel       string   `yaml:"openai_model"`
		OpenAIAPIKey      string   `yaml:"openai_api_key"`

		OpenAIBaseURL      string            `yaml:"openai_base_url"`
		OpenAIMaxTokens    int               `yaml:"openai_max_tokens"`
		OpenAITemperature  float64           `yaml:"openai_temperature"`
		PostedArticlesFile string            `yaml:"posted_articles_file"`
		IntervalMinutes    int               `yaml:"interval_minutes"`
		SkipKeywords       []string          `yaml:"skip_keywords"`
		AuthorizedUserIDs  []int64           `yaml:"authorized_user_ids"`
		URLOverrideBase    string            `yaml:"url_override_base"`
		LogLevel           string            `yaml:"log_level"`
		LogLevels          map[string]string `yaml:"log_levels"`
		Retry              Retry             `yaml:"retry"`
		HTTPTimeoutSeconds int               `yaml:"http_timeout_seconds"`
	}

	// Retry описывает политику повторов для внешних вызовов.
	Retry struct {
		MaxAttempts      int     `yaml:"max_attempts"`
		BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
		JitterMillis     int     `yaml:"jitter_ms"`
	}
)

// Interval возвращает период опроса рейтингов.
func (s *Snapshot) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// HTTPTimeout возвращает таймаут одного внешнего HTTP-вызова.
func (s *Snapshot) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}

// BaseDelay возвращает базовую задержку между повторами.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds * float64(time.Second))
}

// Jitter возвращает максимальный случайный довесок к задержке.
func (r Retry) Jitter() time.Duration {
	return time.Duration(r.JitterMillis) * time.Millisecond
}

func defaultSnapshot() Snapshot {
	return Snapshot{
		OpenAIBaseURL:      defaultOpenAIBaseURL,
		OpenAIMaxTokens:    defaultMaxTokens,
		OpenAITemperature:  defaultTemperature,
		PostedArticlesFile: defaultPostedFile,
		IntervalMinutes:    defaultIntervalMinutes,
		LogLevel:           "info",
		HTTPTimeoutSeconds: defaultHTTPTimeoutSec,
		Retry: Retry{
			MaxAttempts:      3,
			BaseDelaySeconds: 2,
			JitterMillis:     500,
		},
	}
}

// Load читает файл конфигурации, применяет значения по умолчанию и
// переменные окружения (окружение имеет приоритет над файлом),
// затем проверяет обязательные поля.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает документ конфигурации из памяти. Вынесен отдельно,
// чтобы горячую перезагрузку можно было тестировать без файловой системы.
func Parse(data []byte) (*Snapshot, error) {
	cfg := defaultSnapshot()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides перекрывает значения файла переменными окружения.
func applyEnvOverrides(cfg *Snapshot) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (s *Snapshot) validate() error {
	var missing []string
	if len(s.RankingURLs) == 0 {
		missing = append(missing, "ranking_urls")
	}
	if s.APIBaseURL == "" {
		missing = append(missing, "api_base_url")
	}
	if s.TelegramBotToken == "" {
		missing = append(missing, "telegram_bot_token")
	}
	if s.TelegramChannelID == "" {
		missing = append(missing, "telegram_channel_id")
	}
	if s.OpenAIModel == "" {
		missing = append(missing, "openai_model")
	}
	if s.OpenAIAPIKey == "" {
		missing = append(missing, "openai_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}
	if s.IntervalMinutes <= 0 {
		return fmt.Errorf("config: interval_minutes must be positive, got %d", s.IntervalMinutes)
	}
	if s.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive, got %d", s.Retry.MaxAttempts)
	}
	return nil
}
