package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Factory выдаёт логгеры для компонентов с учётом индивидуальных
// уровней из конфигурации (log_levels: {store: debug, feed: warn}).
type Factory struct {
	out       io.Writer
	base      slog.Level
	overrides map[string]slog.Level
}

// Setup разбирает уровни логирования и возвращает фабрику логгеров.
func Setup(level string, overrides map[string]string) *Factory {
	parsed := make(map[string]slog.Level, len(overrides))
	for component, lvl := range overrides {
		parsed[component] = levelFromString(lvl)
	}
	return &Factory{
		out:       os.Stderr,
		base:      levelFromString(level),
		overrides: parsed,
	}
}

// For возвращает логгер для указанного компонента.
func (f *Factory) For(component string) *slog.Logger {
	level := f.base
	if override, ok := f.overrides[component]; ok {
		level = override
	}
	handler := slog.NewTextHandler(f.out, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", component)
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
