package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New creates the process-wide JSON logger writing to stdout. LOG_LEVEL
// selects the verbosity (debug, info, warn, error); unset or unknown values
// mean info.
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})
	return slog.New(handler)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
