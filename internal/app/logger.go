package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

// AtomicLogger is the process logger. Its level can change at runtime
// without rebuilding the handler.
type AtomicLogger struct {
	level  *slog.LevelVar
	logger atomic.Pointer[slog.Logger]
}

// NewAtomicLogger builds a JSON or text logger writing to w.
func NewAtomicLogger(level, format string, w io.Writer) (*AtomicLogger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	l := &AtomicLogger{level: new(slog.LevelVar)}
	l.level.Set(lvl)

	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	l.logger.Store(slog.New(handler))
	return l, nil
}

// Get returns the underlying slog logger.
func (l *AtomicLogger) Get() *slog.Logger {
	return l.logger.Load()
}

// SetLevel changes the minimum level.
func (l *AtomicLogger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

// Level returns the current minimum level.
func (l *AtomicLogger) Level() slog.Level {
	return l.level.Level()
}

func (l *AtomicLogger) Debug(msg string, kv ...any) { l.Get().Debug(msg, kv...) }
func (l *AtomicLogger) Info(msg string, kv ...any)  { l.Get().Info(msg, kv...) }
func (l *AtomicLogger) Warn(msg string, kv ...any)  { l.Get().Warn(msg, kv...) }
func (l *AtomicLogger) Error(msg string, kv ...any) { l.Get().Error(msg, kv...) }

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
