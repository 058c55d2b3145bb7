package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
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
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "authctl.log")
	log, err := SetupLogger(Config{Level: slog.LevelInfo, LogFile: path, Format: "json"})
	if err != nil {
		t.Fatalf("SetupLogger() error = %v", err)
	}

	WithProvider(log, "acme").Debug("hidden")
	WithProvider(log, "acme").Info("visible")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log has %d lines, want 1:\n%s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "visible" || entry["provider"] != "acme" {
		t.Errorf("log entry = %v", entry)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, Config{Level: slog.LevelInfo})).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q", buf.String())
	}
}
