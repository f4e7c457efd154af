package logs

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var (
	logLevel string
)

const (
	LevelNone = slog.Level(12)
)

func getLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return LevelNone
	default:
		return LevelNone
	}
}

func NewLogger() *slog.Logger {
	w := os.Stderr
	handler := tint.NewHandler(w,
		&tint.Options{
			Level:   getLevelFromString(logLevel),
			NoColor: !isatty.IsTerminal(w.Fd()),
		},
	)
	logger := slog.New(handler)

	return logger
}

func SetLogLevel(level string) {
	logLevel = level
}

func ConfigureDefaults(level string) {
	SetLogLevel(level)
	logger := NewLogger()
	slog.SetDefault(logger)
}
