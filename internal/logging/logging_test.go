package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInit_LoggersCreatedBeforeInitSwitch(t *testing.T) {
	log := L("packages")

	var buf bytes.Buffer
	Init(Options{Format: "json", Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Options{Level: "warn"}) })

	log.Debug("installed", KeyHash, "abc", Err(errors.New("none")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry[KeyComponent] != "packages" {
		t.Errorf("component = %v, want packages", entry[KeyComponent])
	}
	if entry[KeyHash] != "abc" {
		t.Errorf("hash = %v, want abc", entry[KeyHash])
	}
	if entry[KeyError] != "none" {
		t.Errorf("error = %v, want none", entry[KeyError])
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Format: "text", Level: "error", Output: &buf})
	t.Cleanup(func() { Init(Options{Level: "warn"}) })

	L("engine").Info("hidden")
	L("engine").Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotpush.log")

	closer := Init(Options{File: path, Level: "info"})
	L("cmd").Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	Init(Options{Level: "warn"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content = %q", data)
	}
}
