package logger_i

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_JSONWithTrace(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")

	ctx := WithTrace(context.Background(), "batch-1")
	NewLogger("ingest").WithContext(ctx).Warn("page skipped", "page", 2)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if entry["component"] != "ingest" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["traceId"] != "batch-1" {
		t.Errorf("traceId = %v", entry["traceId"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "error", "text")

	l := NewLogger("pipeline")
	l.Debug("hidden")
	l.Info("hidden too")
	l.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered levels leaked: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error line missing: %s", out)
	}
}

func TestTraceID_Empty(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID on empty ctx = %q", got)
	}
}
