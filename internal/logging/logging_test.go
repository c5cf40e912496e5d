package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevelAndJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("item_id", "570").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["item_id"] != "570" || entry["message"] != "shown" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("timestamp missing")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "loud"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Format: "console"}, &buf)
	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console format should not emit json: %q", buf.String())
	}
}

func TestOutputStream(t *testing.T) {
	if outputStream("") != os.Stderr || outputStream("STDERR") != os.Stderr {
		t.Fatal("default output should be stderr")
	}
	if outputStream("stdout") != os.Stdout {
		t.Fatal("stdout not honoured")
	}

	path := filepath.Join(t.TempDir(), "pricewatch.log")
	out := outputStream(path)
	file, ok := out.(*os.File)
	if !ok {
		t.Fatalf("expected a file writer, got %T", out)
	}
	t.Cleanup(func() { file.Close() })

	logger := newLogger(Config{}, out)
	logger.Info().Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
