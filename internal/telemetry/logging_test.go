package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONLines(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("agent started", "agent_id", "abc12345")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLogLines(t, filepath.Join(home, "logs", "system.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if entry["msg"] != "agent started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "warden" {
		t.Errorf("component = %v", entry["component"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp key")
	}
	if _, ok := entry["time"]; ok {
		t.Error("time key should be renamed to timestamp")
	}
}

func TestNewLogger_RedactsSecretKeys(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("loaded credentials", "api_key", "sk-ant-verysecretvalue", "repo", "https://example.com/r.git")
	closer.Close()

	lines := readLogLines(t, filepath.Join(home, "logs", "system.jsonl"))
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want [REDACTED]", entry["api_key"])
	}
	if entry["repo"] != "https://example.com/r.git" {
		t.Errorf("repo should pass through, got %v", entry["repo"])
	}
}

func TestNewLogger_RedactsKeyLikeValues(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Warn("exec env", "env", "ANTHROPIC_API_KEY=sk-ant-abc123def456")
	closer.Close()

	lines := readLogLines(t, filepath.Join(home, "logs", "system.jsonl"))
	if strings.Contains(lines[0], "sk-ant-abc123def456") {
		t.Errorf("raw key leaked into log: %s", lines[0])
	}
	if !strings.Contains(lines[0], "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", lines[0])
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "warn", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	closer.Close()

	lines := readLogLines(t, filepath.Join(home, "logs", "system.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "kept") {
		t.Errorf("wrong line survived: %s", lines[0])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func readLogLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}
