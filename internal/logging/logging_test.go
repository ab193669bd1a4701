package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dskow/okey-devtools/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"})

	logger.Debug("hidden")
	logger.Info("launching instance", "instance", "server")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["instance"] != "server" {
		t.Errorf("expected instance=server, got %v", entry["instance"])
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})

	logger.Debug("waiting", "delay", "2s")

	if !strings.Contains(buf.String(), "msg=waiting") || !strings.Contains(buf.String(), "delay=2s") {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "marathon.log")
	cfg := config.LoggingConfig{Output: path, Level: "info", Format: "text", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}

	logger, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("expected log line in file, got %q", string(data))
	}
}

func TestNew_StandardStreams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr"} {
		logger, closer, err := New(config.LoggingConfig{Output: out})
		if err != nil {
			t.Fatalf("New(%s): %v", out, err)
		}
		if logger == nil {
			t.Fatalf("New(%s) returned nil logger", out)
		}
		if err := closer.Close(); err != nil {
			t.Errorf("closing %s must be a no-op, got %v", out, err)
		}
	}
}
