package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DebugRoot is the directory raw provider payloads are written under.
var DebugRoot = "debug"

// ResponseDebugger writes the raw request/response payloads of one model
// call to disk. It centralizes directory creation, file naming, and safe writing.
type ResponseDebugger struct {
	file    *os.File
	enabled bool
}

// NewResponseDebugger creates a new debugger instance.
// It attempts to open the debug file immediately if enabled.
//
// Parameters:
//   - ctx: Context containing the potential DebugDirContextKey
//   - provider: Name of the LLM provider (e.g., "gemini", "openai")
//   - enabled: Whether debugging is globally enabled
func NewResponseDebugger(ctx context.Context, provider string, enabled bool) *ResponseDebugger {
	if !enabled {
		return &ResponseDebugger{enabled: false}
	}

	debugDir := filepath.Join(DebugRoot, "chunks", provider)

	// If session ID is in context, nest under it
	if val := ctx.Value(DebugDirContextKey); val != nil {
		if dirStr, ok := val.(string); ok && dirStr != "" {
			debugDir = filepath.Join(DebugRoot, "chunks", dirStr, provider)
		}
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	timestamp := time.Now().Format("20060102_150405.000")
	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", timestamp))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	slog.Debug("Debug mode ON", "provider", provider, "file", filename)
	return &ResponseDebugger{
		file:    f,
		enabled: true,
	}
}

// WriteJSON marshals v and appends it as one line.
func (d *ResponseDebugger) WriteJSON(label string, v any) {
	if !d.enabled || d.file == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal debug payload", "label", label, "error", err)
		return
	}
	d.WriteString(label + " " + string(data))
}

// WriteString appends a string to the debug file if enabled.
func (d *ResponseDebugger) WriteString(s string) {
	if !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.WriteString(s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// Close closes the debug file handle.
func (d *ResponseDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
