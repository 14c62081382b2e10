// Package logger builds the launcher's fan-out slog logger: JSON file,
// colourized console, and an optional sink that republishes records as
// events so a host UI can subscribe to a live log feed.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ANSI color codes
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Gray   = "\033[37m"
)

type ConsoleHandler struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleHandler(out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{out: out}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelColor := Reset
	switch r.Level {
	case slog.LevelDebug:
		levelColor = Gray
	case slog.LevelInfo:
		levelColor = Green
	case slog.LevelWarn:
		levelColor = Yellow
	case slog.LevelError:
		levelColor = Red
	}

	var attrs string
	r.Attrs(func(a slog.Attr) bool {
		attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	timeStr := r.Time.Format(time.TimeOnly)
	msg := fmt.Sprintf("%s%s%s [%s] %s%s\n", levelColor, r.Level.String()[:4], Reset, timeStr, r.Message, attrs)

	_, err := h.out.Write([]byte(msg))
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return h
}

// EventSink is the narrow interface a host application (GUI, test harness)
// implements to receive log-derived events. The core never imports a UI
// toolkit directly — see SinkHandler.
type EventSink interface {
	Publish(eventType string, payload any)
}

// SinkHandler emits log records as events through whatever EventSink is
// currently wired in. With no sink set, records are dropped silently,
// matching spec.md §7's "absence of a logger means silent".
type SinkHandler struct {
	mu   sync.Mutex
	sink EventSink
}

func NewSinkHandler() *SinkHandler {
	return &SinkHandler{}
}

func (h *SinkHandler) SetSink(sink EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *SinkHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *SinkHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()

	if sink == nil {
		return nil
	}

	data := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	sink.Publish("log:entry", map[string]interface{}{
		"level":   r.Level.String(),
		"message": r.Message,
		"time":    r.Time.Format(time.RFC3339),
		"data":    data,
	})

	return nil
}

func (h *SinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // attrs are read directly off the record; nothing to carry
}

func (h *SinkHandler) WithGroup(name string) slog.Handler {
	return h
}

// New creates a logger backed by a FanoutHandler (JSON file + console +
// event sink). dataDir is the launcher's per-user data directory; logs are
// written under dataDir/logs/launcher.json.
func New(dataDir string, consoleOutput io.Writer) (*slog.Logger, *SinkHandler, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, "launcher.json"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	jsonHandler := slog.NewJSONHandler(f, nil)
	consoleHandler := NewConsoleHandler(consoleOutput)
	sinkHandler := NewSinkHandler()

	handler := &FanoutHandler{
		handlers: []slog.Handler{jsonHandler, consoleHandler, sinkHandler},
	}

	return slog.New(handler), sinkHandler, nil
}

// FanoutHandler dispatches every record to each wrapped handler. A failing
// handler never silences the others.
type FanoutHandler struct {
	handlers []slog.Handler
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		_ = handler.Handle(ctx, r)
	}
	return nil
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: newHandlers}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &FanoutHandler{handlers: newHandlers}
}
