package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger writes colored text in dev/local and JSON everywhere else.
// LOG_LEVEL accepts debug, info, warn or error.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Getenv("LOG_LEVEL"), os.Stdout)
}

// NewConsoleLogger writes colored text at level to w. Terminal tools use it
// so logs stay off stdout.
func NewConsoleLogger(level string, w io.Writer) *slog.Logger {
	return newLogger("dev", level, w)
}

func newLogger(env, level string, w io.Writer) *slog.Logger {
	lvl := parseLevel(level)
	if env == "dev" || env == "local" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	}))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
