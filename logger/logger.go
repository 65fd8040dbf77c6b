package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// Setup configures the global logger based on the provided configuration
func Setup(level, format string) error {
	return SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup with records written to w
func SetupTo(w io.Writer, level, format string) error {
	slog.SetDefault(New(w, level, format))
	return nil
}

// New builds a logger writing to w. Records that look like binary engine
// chatter are dropped.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(&quietHandler{next: handler})
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithFields returns a logger with the given fields
func WithFields(fields ...any) *slog.Logger {
	return slog.With(fields...)
}

// WithComponent returns a logger with a component field
func WithComponent(component string) *slog.Logger {
	return slog.With("component", component)
}

// noisyMinLen is the message length above which unprintable content is
// treated as engine noise.
const noisyMinLen = 40

type quietHandler struct {
	next slog.Handler
}

func (h *quietHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *quietHandler) Handle(ctx context.Context, r slog.Record) error {
	if IsNoise(r.Message) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *quietHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &quietHandler{next: h.next.WithAttrs(attrs)}
}

func (h *quietHandler) WithGroup(name string) slog.Handler {
	return &quietHandler{next: h.next.WithGroup(name)}
}

// IsNoise reports whether msg is a long line carrying non-printable bytes.
func IsNoise(msg string) bool {
	if len(msg) <= noisyMinLen {
		return false
	}
	for _, r := range msg {
		if r > unicode.MaxASCII || (r < 0x20 && r != '\t') || r == 0x7f {
			return true
		}
	}
	return false
}
