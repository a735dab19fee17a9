package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// StreamIDRegex validates stream ID format
	StreamIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxTitleLength          = 100
	MaxDestinationKeyLength = 256
	MaxOverlayTextLength    = 500
	MaxFileNameLength       = 255
	// MaxDurationHours caps the optional per-stream duration limit.
	MaxDurationHours = 24 * 7
)

// StreamFields is the configuration subset of a stream that can be validated
// without knowing its runtime state.
type StreamFields struct {
	Title            string
	DestinationKey   string
	Quality          string
	Orientation      string
	MaxDurationHours *int
	FileName         string
	OverlayText      string
}

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateUsername validates username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateStreamID validates stream ID
func ValidateStreamID(streamID string) error {
	if streamID == "" {
		return fmt.Errorf("stream ID is required")
	}
	if len(streamID) > 100 {
		return fmt.Errorf("stream ID is too long (max 100 characters)")
	}
	if !StreamIDRegex.MatchString(streamID) {
		return fmt.Errorf("invalid stream ID format")
	}
	return nil
}

func ValidateStreamTitle(title string) error {
	if err := ValidateNonEmptyString(title, "title"); err != nil {
		return err
	}
	if !utf8.ValidString(title) {
		return fmt.Errorf("title contains invalid characters")
	}
	return ValidateStringLength(title, 1, MaxTitleLength, "title")
}

func ValidateDestinationKey(key string) error {
	if err := ValidateNonEmptyString(key, "destination key"); err != nil {
		return err
	}
	return ValidateStringLength(key, 1, MaxDestinationKeyLength, "destination key")
}

func ValidateQuality(quality string) error {
	switch quality {
	case "1080p", "720p", "480p":
		return nil
	}
	return fmt.Errorf("invalid quality %q (must be 1080p, 720p, or 480p)", quality)
}

func ValidateOrientation(orientation string) error {
	switch orientation {
	case "desktop", "mobile":
		return nil
	}
	return fmt.Errorf("invalid orientation %q (must be desktop or mobile)", orientation)
}

// ValidateMaxDuration accepts nil (unlimited) or a positive number of hours.
func ValidateMaxDuration(hours *int) error {
	if hours == nil {
		return nil
	}
	if *hours < 1 {
		return fmt.Errorf("max duration must be at least 1 hour")
	}
	if *hours > MaxDurationHours {
		return fmt.Errorf("max duration is too long (max %d hours)", MaxDurationHours)
	}
	return nil
}

// ValidateStreamFields checks every configuration field and returns the first violation.
func ValidateStreamFields(f StreamFields) error {
	checks := []func() error{
		func() error { return ValidateStreamTitle(f.Title) },
		func() error { return ValidateDestinationKey(f.DestinationKey) },
		func() error { return ValidateQuality(f.Quality) },
		func() error { return ValidateOrientation(f.Orientation) },
		func() error { return ValidateMaxDuration(f.MaxDurationHours) },
		func() error { return ValidateStringLength(f.FileName, 0, MaxFileNameLength, "file name") },
		func() error { return ValidateStringLength(f.OverlayText, 0, MaxOverlayTextLength, "overlay text") },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
