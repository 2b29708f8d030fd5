package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, Options{Service: "marketd", Env: "test", Level: "debug"})
	logger.Debug("dataset registered", "datasetId", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing %q in %v", key, line)
		}
	}
	if line["severity"] != "DEBUG" || line["message"] != "dataset registered" || line["service"] != "marketd" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, Options{Service: "marketd", Level: "warn"})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered at warn: %s", buf.String())
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unknown levels should default to info")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("token", "eyJhbGciOi").Value.String(); got != RedactedValue {
		t.Fatalf("token should be masked, got %q", got)
	}
	if got := MaskField("component", "gateway").Value.String(); got != "gateway" {
		t.Fatalf("allowlisted key should pass through, got %q", got)
	}
	if got := MaskField("secret", "").Value.String(); got != "" {
		t.Fatalf("empty values stay empty, got %q", got)
	}
}

func TestOutputWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketd.log")
	logger, _ := New(Output(FileOptions{Path: path, MaxSizeMB: 1}), Options{Service: "marketd"})
	logger.Info("ready")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"message":"ready"`)) {
		t.Fatalf("log file missing line: %s", data)
	}
}

func TestOutputDefaultsToStdout(t *testing.T) {
	if Output(FileOptions{}) != os.Stdout {
		t.Fatalf("expected stdout without a file path")
	}
}
