package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readLogEntries parses every JSON line written to the store log.
func readLogEntries(t *testing.T, rootDir string) []map[string]any {
	t.Helper()

	f, err := os.Open(filepath.Join(rootDir, "logs", LogFileName))
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("malformed log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLoggerWritesJSONToLogsDir(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("document saved", "document_id", "doc1", "bytes", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries := readLogEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0]["msg"] != "document saved" {
		t.Errorf("unexpected msg: %v", entries[0]["msg"])
	}
	if entries[0]["document_id"] != "doc1" {
		t.Errorf("unexpected document_id: %v", entries[0]["document_id"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	entries := readLogEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at WARN level, got %d", len(entries))
	}
	for _, entry := range entries {
		level, _ := entry["level"].(string)
		if level != "WARN" && level != "ERROR" {
			t.Errorf("unexpected level in output: %v", level)
		}
	}
}

func TestChildLoggersInheritAttrs(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithSession("sess-1").WithOperation("heartbeat")
	child.Info("heartbeat recorded")
	logger.Close()

	entries := readLogEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["session_id"] != "sess-1" {
		t.Errorf("session_id not propagated: %v", entries[0])
	}
	if entries[0]["operation"] != "heartbeat" {
		t.Errorf("operation not propagated: %v", entries[0])
	}
}

func TestWithIgnoresNonStringKeys(t *testing.T) {
	logger := NopLogger()

	child := logger.With(42, "value", "ok", "yes")
	if len(child.attrs) != 1 {
		t.Errorf("expected 1 attr, got %d", len(child.attrs))
	}
	if child.attrs[0].Key != "ok" {
		t.Errorf("unexpected attr key: %s", child.attrs[0].Key)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NopLogger()
	// Must not panic and must not create files.
	logger.Info("discarded", "k", "v")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on NopLogger failed: %v", err)
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	joined := strings.Join(levels, ",")
	for _, want := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if !strings.Contains(joined, want) {
			t.Errorf("ValidLevels missing %s", want)
		}
	}
}
