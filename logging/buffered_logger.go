package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// BufferedLogHandler is a slog.Handler that keeps records in memory as JSON
// lines. Tests install it to assert on what was logged:
//
//	handler := logging.NewBufferedLogHandler(nil)
//	logging.SetLogger(slog.New(handler))
//	// ... process a document ...
//	if handler.Contains("rebuilding cross-reference table") { ... }
type BufferedLogHandler struct {
	level  slog.Leveler
	state  *bufferState
	attrs  []slog.Attr
	groups []string
}

type bufferState struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

// NewBufferedLogHandler creates a handler with an empty buffer. A nil opts
// captures every level.
func NewBufferedLogHandler(opts *slog.HandlerOptions) *BufferedLogHandler {
	h := &BufferedLogHandler{state: &bufferState{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// Enabled implements slog.Handler.
func (h *BufferedLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferedLogHandler) Handle(_ context.Context, r slog.Record) error {
	entry := logEntry{
		Level:    r.Level.String(),
		Message:  r.Message,
		DateTime: r.Time.Format(time.DateTime),
	}
	for _, attr := range h.attrs {
		entry.Attrs = append(entry.Attrs, h.prefixed(attr))
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry.Attrs = append(entry.Attrs, h.prefixed(attr))
		return true
	})

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.buffer.Write(data)
	h.state.buffer.WriteByte('\n')
	return nil
}

func (h *BufferedLogHandler) prefixed(attr slog.Attr) string {
	s := attr.String()
	for i := len(h.groups) - 1; i >= 0; i-- {
		s = h.groups[i] + "." + s
	}
	return s
}

// WithAttrs implements slog.Handler.
func (h *BufferedLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *BufferedLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

// String returns all captured output.
func (h *BufferedLogHandler) String() string {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.buffer.String()
}

// Contains reports whether the captured output contains s.
func (h *BufferedLogHandler) Contains(s string) bool {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return bytes.Contains(h.state.buffer.Bytes(), []byte(s))
}

// Reset clears the captured output.
func (h *BufferedLogHandler) Reset() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.buffer.Reset()
}

type logEntry struct {
	Level    string   `json:"level"`
	Message  string   `json:"message"`
	DateTime string   `json:"datetime"`
	Attrs    []string `json:"attrs,omitempty"`
}
