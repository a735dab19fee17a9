package utils

import (
	"fmt"
	"time"
)

// FormatClock renders an elapsed duration as zero-padded HH:MM:SS. Negative
// durations render as 00:00:00; hours are not capped at 99.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ElapsedClock formats now-start, or 00:00:00 when start is unset.
func ElapsedClock(start *time.Time, now time.Time) string {
	if start == nil {
		return FormatClock(0)
	}
	return FormatClock(now.Sub(*start))
}
