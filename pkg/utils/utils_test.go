package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := GenerateStreamID()
		if !strings.HasPrefix(id, "stream_") {
			t.Fatalf("expected prefix 'stream_', got %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "00:00:00"},
		{"sub-second", 900 * time.Millisecond, "00:00:00"},
		{"seconds", 42 * time.Second, "00:00:42"},
		{"minutes", 5*time.Minute + 7*time.Second, "00:05:07"},
		{"hours", 3*time.Hour + 2*time.Minute + time.Second, "03:02:01"},
		{"over a day", 100*time.Hour + 59*time.Second, "100:00:59"},
		{"negative", -time.Second, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatClock(tt.input); got != tt.expected {
				t.Errorf("FormatClock(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestElapsedClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := ElapsedClock(nil, now); got != "00:00:00" {
		t.Errorf("ElapsedClock(nil) = %q", got)
	}
	start := now.Add(-(time.Hour + 30*time.Second))
	if got := ElapsedClock(&start, now); got != "01:00:30" {
		t.Errorf("ElapsedClock = %q, want 01:00:30", got)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal string", "hello", "hello"},
		{"with control chars", "hello\x00world", "helloworld"},
		{"with newline", "hello\nworld", "hello\nworld"},
		{"with whitespace", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.input); got != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	if got := NormalizeIdentifier("  Demo@BintuNet.com "); got != "demo@bintunet.com" {
		t.Errorf("NormalizeIdentifier = %q", got)
	}
}

func TestMaskSensitive(t *testing.T) {
	if got := MaskSensitive("abcd-efgh", 4); got != "abcd*****" {
		t.Errorf("MaskSensitive = %q", got)
	}
	if got := MaskSensitive("abc", 4); got != "***" {
		t.Errorf("MaskSensitive short = %q", got)
	}
}
