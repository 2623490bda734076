// Package logging provides structured, component-tagged loggers for hotpush.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeyHash      = "hash"
	KeyPath      = "path"
	KeyError     = "error"
)

// switchableHandler lets package-level loggers created before Init
// pick up the configured handler once Init runs.
type switchableHandler struct {
	current *atomic.Value // handlerBox
	attrs   []slog.Attr
	groups  []string
}

func (h *switchableHandler) materialize() slog.Handler {
	handler := h.current.Load().(handlerBox).Handler
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.materialize().Enabled(ctx, level)
}

func (h *switchableHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.materialize().Handle(ctx, record)
}

func (h *switchableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &switchableHandler{current: h.current, attrs: merged, groups: append([]string(nil), h.groups...)}
}

func (h *switchableHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &switchableHandler{current: h.current, attrs: append([]slog.Attr(nil), h.attrs...), groups: groups}
}

var (
	rootHandler   = newRootHandler()
	defaultLogger = slog.New(rootHandler)
)

// handlerBox keeps the atomic.Value's concrete type stable across handler kinds.
type handlerBox struct{ slog.Handler }

func newRootHandler() *switchableHandler {
	v := &atomic.Value{}
	v.Store(handlerBox{slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})})
	return &switchableHandler{current: v}
}

// Options configures the global logger.
type Options struct {
	// Format is "json" or "text" (default "text").
	Format string
	// Level is "debug", "info", "warn" or "error" (default "info").
	Level string
	// File, if set, sends output to a rotating log file instead of Output.
	File string
	// Output is the writer used when File is empty (nil = os.Stderr).
	Output io.Writer
}

// Init installs the global handler. It returns a closer for the log file, if any.
func Init(opts Options) io.Closer {
	var closer io.Closer = nopCloser{}
	output := opts.Output
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		output = lj
		closer = lj
	}
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	rootHandler.current.Store(handlerBox{handler})
	return closer
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// Err formats an error as a log attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
