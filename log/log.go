package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	logger    atomic.Pointer[slog.Logger]
	logWriter *lumberjack.Logger

	warnCount  atomic.Int64
	errorCount atomic.Int64
)

// countingHandler counts WARN and ERROR records for the final summary.
type countingHandler struct {
	inner slog.Handler
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	switch {
	case r.Level >= slog.LevelError:
		errorCount.Add(1)
	case r.Level >= slog.LevelWarn:
		warnCount.Add(1)
	}
	return h.inner.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{inner: h.inner.WithGroup(name)}
}

// Init configures the package logger. An empty path logs text to stderr,
// otherwise JSON records go to a rotating file.
func Init(level Level, path string) {
	opts := &slog.HandlerOptions{Level: toSlog(level)}

	var inner slog.Handler
	if path == "" {
		inner = slog.NewTextHandler(os.Stderr, opts)
	} else {
		logWriter = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		inner = slog.NewJSONHandler(logWriter, opts)
	}
	l := slog.New(&countingHandler{inner: inner})
	logger.Store(l)
	slog.SetDefault(l)
}

// SetOutput redirects text output, mostly for tests.
func SetOutput(w io.Writer, level Level) {
	l := slog.New(&countingHandler{inner: slog.NewTextHandler(w, &slog.HandlerOptions{Level: toSlog(level)})})
	logger.Store(l)
}

func Close() {
	if logWriter != nil {
		_ = logWriter.Close()
	}
}

func toSlog(level Level) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func msg(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func Debugf(format string, args ...interface{}) {
	get().Debug(msg(format, args...))
}

func Infof(format string, args ...interface{}) {
	get().Info(msg(format, args...))
}

func Warnf(format string, args ...interface{}) {
	get().Warn(msg(format, args...))
}

func Errorf(format string, args ...interface{}) {
	get().Error(msg(format, args...))
}

func Error(err error) {
	get().Error(err.Error())
}

// Counts returns the number of warnings and errors logged so far.
func Counts() (warn, err int64) {
	return warnCount.Load(), errorCount.Load()
}
