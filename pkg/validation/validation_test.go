package validation

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "demo@bintunet.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"empty email", "", true},
		{"invalid format", "invalid-email", true},
		{"too long", strings.Repeat("a", 250) + "@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid username", "user1", false},
		{"valid with underscore", "demo_user", false},
		{"too short", "ab", true},
		{"invalid chars", "user name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStreamFields(t *testing.T) {
	valid := StreamFields{
		Title:          "Morning show",
		DestinationKey: "abcd-1234",
		Quality:        "720p",
		Orientation:    "desktop",
	}

	tests := []struct {
		name    string
		mutate  func(f *StreamFields)
		wantErr string
	}{
		{"valid", func(f *StreamFields) {}, ""},
		{"empty title", func(f *StreamFields) { f.Title = "   " }, "title is required"},
		{"long title", func(f *StreamFields) { f.Title = strings.Repeat("x", MaxTitleLength+1) }, "title is too long"},
		{"empty key", func(f *StreamFields) { f.DestinationKey = "" }, "destination key is required"},
		{"bad quality", func(f *StreamFields) { f.Quality = "4k" }, "invalid quality"},
		{"bad orientation", func(f *StreamFields) { f.Orientation = "tablet" }, "invalid orientation"},
		{"zero duration", func(f *StreamFields) { f.MaxDurationHours = intPtr(0) }, "at least 1 hour"},
		{"huge duration", func(f *StreamFields) { f.MaxDurationHours = intPtr(MaxDurationHours + 1) }, "max duration is too long"},
		{"positive duration", func(f *StreamFields) { f.MaxDurationHours = intPtr(2) }, ""},
		{"long overlay", func(f *StreamFields) { f.OverlayText = strings.Repeat("o", MaxOverlayTextLength+1) }, "overlay text is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := ValidateStreamFields(f)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateStreamID(t *testing.T) {
	if err := ValidateStreamID("stream_0f8c7a3e-1d2b-4c5d-9e8f-001122334455"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStreamID("../etc/passwd"); err == nil {
		t.Error("expected error for path-like id")
	}
	if err := ValidateStreamID(""); err == nil {
		t.Error("expected error for empty id")
	}
}
