package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"imagent/pkg/llm"
)

// CustomHandler implements slog.Handler to provide [TIME] [LEVEL] format
type CustomHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &CustomHandler{
		mu:   &sync.Mutex{},
		w:    w,
		opts: opts,
	}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	// Session id travels in the context under llm.DebugDirContextKey
	debugID := ""
	if ctx != nil {
		if val := ctx.Value(llm.DebugDirContextKey); val != nil {
			if id, ok := val.(string); ok && id != "" {
				debugID = id
			}
		}
	}

	// Format: [2006-01-02 15:04:05] [LEVEL] [DEBUG_ID] Message
	// Or:    [2006-01-02 15:04:05] [LEVEL] Message (if no debugID)
	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	if debugID != "" {
		fmt.Fprintf(buf, " [%s]", debugID)
	}

	fmt.Fprintf(buf, " %s", r.Message)

	// Append attributes
	// 1. Stored attributes (from WithAttrs)
	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}

	// 2. Record attributes
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	// Simple value formatting
	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	case slog.KindDuration:
		buf.WriteString(val.Duration().String())
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{
		mu:    h.mu,
		w:     h.w,
		opts:  h.opts,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	// Grouping not fully supported in this simple implementation
	return h
}

// ParseLevel maps a config level name to a slog level. An empty name means info.
func ParseLevel(levelStr string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// SetupSlog initializes the global slog logger with the CustomHandler.
func SetupSlog(w io.Writer, levelStr string) {
	level, _ := ParseLevel(levelStr)
	if w == nil {
		w = os.Stderr
	}

	handler := NewCustomHandler(w, slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
