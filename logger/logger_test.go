package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestIsNoise(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want bool
	}{
		{"short binary", "\x01\x02", false},
		{"long printable", strings.Repeat("a", 80), false},
		{"long binary", strings.Repeat("a", 50) + "\x00\x9f", true},
		{"long with tab", strings.Repeat("a", 50) + "\tb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNoise(tt.msg); got != tt.want {
				t.Errorf("IsNoise(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestNewFiltersNoise(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text").With("component", "engine")

	log.Info(strings.Repeat("x", 45) + "\x01\x02\x03")
	if buf.Len() != 0 {
		t.Fatalf("noisy record was written: %q", buf.String())
	}

	log.Info("track opened")
	if !strings.Contains(buf.String(), "track opened") || !strings.Contains(buf.String(), "component=engine") {
		t.Errorf("expected record with component attr, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "json").Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json handler output = %q", buf.String())
	}
}
