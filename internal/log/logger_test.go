package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentApp})
	logger.WithComponent(ComponentExport).Info("hello", FieldRows, 3)

	out := buf.String()
	if !strings.Contains(out, "component=export") || !strings.Contains(out, "rows=3") {
		t.Fatalf("unexpected log line: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component logged more than once: %s", out)
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Handler: slog.NewTextHandler(&buf, nil)}))
	sl.LogError(context.Background(), "fetch failed", errors.New("boom"), ComponentCoordinator, OpFetch, nil)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=boom", "operation=fetch", "component=coordinator"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}
