package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_AutoIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatAuto, "info")
	logger.Info("document saved", "id", "doc-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "document saved" || line["id"] != "doc-1" {
		t.Errorf("unexpected record: %v", line)
	}
}

func TestNew_PrettyWritesPlainTextOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatPretty, "debug")
	logger.Debug("cache miss", "key", "documents:1")

	out := buf.String()
	if !strings.Contains(out, "cache miss") || !strings.Contains(out, "key=documents:1") {
		t.Errorf("unexpected pretty output: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("colors must be disabled when not writing to a terminal: %q", out)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON, "warn")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn should be written at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
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
