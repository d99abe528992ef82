package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(&bytes.Buffer{})
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Debug("debug line")
	Info("info line")
	Warn("warn line")
	Error("error line", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below WARN should be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] warn line") {
		t.Errorf("missing warn line in:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] error line err=boom") {
		t.Errorf("missing error line in:\n%s", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t)

	Info("series saved", "id", 3, "title", "Weekly Sync", "dangling")

	out := buf.String()
	if !strings.Contains(out, `id=3 title="Weekly Sync"`) {
		t.Errorf("unexpected kv formatting: %s", out)
	}
	if strings.Contains(out, "dangling") {
		t.Errorf("odd trailing value should be dropped: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v,%v; want %v,%v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
