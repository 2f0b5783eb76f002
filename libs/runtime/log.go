package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bookit-app/bookit/libs/config"
)

// NewLogger builds the process logger. LOG_FORMAT=pretty switches to the colored
// handler for local runs; everything else gets JSON on stdout.
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service, config.String("LOG_FORMAT", "json"), config.String("LOG_LEVEL", "info"))
}

func newLogger(w io.Writer, service, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "pretty") {
		h = NewPrettyHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

func ParseLevel(raw string) slog.Level {
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
