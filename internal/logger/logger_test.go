package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug level", "debug", "text"},
		{"info level", "info", "text"},
		{"warn level", "warn", "text"},
		{"error level", "error", "text"},
		{"json format", "info", "json"},
		{"default level", "unknown", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if log := New(tt.level, tt.format); log == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestSilentLoggerDoesNotPanic(t *testing.T) {
	log := NewSilent()
	log.Debug("debug message")
	log.Info("info message", "table", "users")
	log.Warn("warn message")
	log.Error("error message", "error", "boom")
}

func TestWithFieldKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("info", "text", &buf)

	log.WithField("table", "users").Info("restoring table")

	out := buf.String()
	if !strings.Contains(out, "restoring table") {
		t.Errorf("missing message in %q", out)
	}
	if !strings.Contains(out, "table=users") {
		t.Errorf("expected table field in %q", out)
	}
}

func TestDisabledLevelWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("error", "text", &buf)

	log.Info("should be dropped", "table", "users")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestJSONFormatIncludesAllFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("info", "json", &buf)

	log.Info("batch inserted", "table", "users", "batch", 3)

	out := buf.String()
	if !strings.Contains(out, `"batch":3`) || !strings.Contains(out, `"table":"users"`) {
		t.Errorf("unexpected json output %q", out)
	}
}

func TestOperationLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("info", "text", &buf)

	op := log.StartOperation("ndjson")
	op.Update("table done")
	op.Complete("all tables restored")
	op.Fail("something went wrong")

	out := buf.String()
	if !strings.Contains(out, "[ndjson] COMPLETED: all tables restored") {
		t.Errorf("missing completion line in %q", out)
	}
	if !strings.Contains(out, "[ndjson] FAILED: something went wrong") {
		t.Errorf("missing failure line in %q", out)
	}
}

func TestFieldsFromArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []any
		expected int
	}{
		{"empty args", nil, 0},
		{"single pair", []any{"key", "value"}, 1},
		{"multiple pairs", []any{"k1", "v1", "k2", 42}, 2},
		{"odd number", []any{"key", "value", "orphan"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fields := fieldsFromArgs(tt.args...); len(fields) != tt.expected {
				t.Errorf("expected %d fields, got %d", tt.expected, len(fields))
			}
		})
	}
}

func TestCleanFormatterSkipsUnlistedFields(t *testing.T) {
	formatter := &CleanFormatter{}

	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.InfoLevel,
		Message: "upload complete",
		Data: logrus.Fields{
			"bucket":   "avatars",
			"internal": "hidden",
			"duration": "1.5s",
		},
	}

	output, err := formatter.Format(entry)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}

	out := string(output)
	if !strings.Contains(out, "bucket=avatars") {
		t.Error("output should contain bucket field")
	}
	if strings.Contains(out, "hidden") {
		t.Error("output should not contain unlisted field")
	}
	if !strings.Contains(out, "(1.5s)") {
		t.Error("output should render duration in parentheses")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{2*time.Hour + 30*time.Minute, "2h 30m 0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.duration); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
		}
	}
}
