package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger: JSON at info in prod, text at debug
// elsewhere. LOG_LEVEL overrides the level. Every record carries the
// service name so api, worker and sweeper lines can be told apart.
func New(env, service string) *slog.Logger {
	return newLogger(os.Stdout, env, service, os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, env, service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if env == "prod" {
		opts.Level = slog.LevelInfo
	}
	if level != "" {
		var lv slog.Level
		if err := lv.UnmarshalText([]byte(strings.ToUpper(level))); err == nil {
			opts.Level = lv
		}
	}

	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}
