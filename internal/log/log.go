// Package log provides structured logging for go-cartdock.
// It wraps slog with sensible defaults for production use.
package log

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level: ParseLevel(level),
		}

		// Use JSON in production, text in development
		if os.Getenv("GO_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
		}

		slog.SetDefault(logger)
	})
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Or returns l, or the global logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return L()
	}
	return l
}

// Throttle emits at most one record per interval.
// Used for progress messages inside control loops.
type Throttle struct {
	logger    *slog.Logger
	sometimes rate.Sometimes
}

// Every returns a Throttle writing to l at most once per interval.
func Every(l *slog.Logger, interval time.Duration) *Throttle {
	return &Throttle{
		logger:    Or(l),
		sometimes: rate.Sometimes{Interval: interval},
	}
}

// Info logs at info level if the interval has elapsed since the last record.
func (t *Throttle) Info(msg string, args ...any) {
	t.sometimes.Do(func() {
		t.logger.Info(msg, args...)
	})
}

// Warn logs at warn level if the interval has elapsed since the last record.
func (t *Throttle) Warn(msg string, args ...any) {
	t.sometimes.Do(func() {
		t.logger.Warn(msg, args...)
	})
}
