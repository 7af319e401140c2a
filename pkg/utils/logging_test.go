package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: slog.LevelDebug},
		{name: "info level", input: "INFO", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "warn level", input: "WARN", expected: slog.LevelWarn},
		{name: "warning level", input: "WARNING", expected: slog.LevelWarn},
		{name: "error level", input: "ERROR", expected: slog.LevelError},
		{name: "case insensitive", input: "debug", expected: slog.LevelDebug},
		{name: "invalid level", input: "INVALID", expected: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("text format filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(slog.LevelWarn, "text", &buf)

		logger.Info("hidden")
		logger.Warn("shown", "queue", "orders.fifo")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info record should be filtered: %q", out)
		}
		if !strings.Contains(out, "queue=orders.fifo") {
			t.Errorf("warn record missing attributes: %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(slog.LevelDebug, "JSON", &buf).Debug("hello", "bucket", "assets")

		var record map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
		}
		if record["bucket"] != "assets" {
			t.Errorf("bucket = %v", record["bucket"])
		}
	})
}

func TestSetupLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudkit.log")

	logger, closeFn, err := SetupLogging("info", "text", path)
	if err != nil {
		t.Fatalf("SetupLogging() error = %v", err)
	}
	logger.Info("written")
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}

	if _, _, err := SetupLogging("loud", "text", ""); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	OrDiscard(nil).Error("dropped")

	logger := NewLogger(slog.LevelInfo, "text", &bytes.Buffer{})
	if OrDiscard(logger) != logger {
		t.Error("OrDiscard should return a non-nil logger unchanged")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{8 * 1024 * 1024, "8.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"5MB", 5 * 1024 * 1024, false},
		{"8M", 8 * 1024 * 1024, false},
		{"1.5KB", 1536, false},
		{"2 GB", 2 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}
