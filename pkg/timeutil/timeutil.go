// Package timeutil provides race time formatting for Polytrack leaderboard
// entries. The service reports elapsed times in milliseconds under a "frames"
// key; this package renders them the way the game client does.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// FormatRaceTime renders a millisecond race time as "1h 2m 3.045s",
// omitting the hour and minute components when they are zero. Negative
// inputs render as "N/A", matching how the dashboard treats missing times.
func FormatRaceTime(milliseconds int64) string {
	if milliseconds < 0 {
		return "N/A"
	}

	ms := milliseconds % 1000
	totalSeconds := milliseconds / 1000
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %d.%03ds", h, m, s, ms)
	case m > 0:
		return fmt.Sprintf("%dm %d.%03ds", m, s, ms)
	default:
		return fmt.Sprintf("%d.%03ds", s, ms)
	}
}

// FormatSeconds renders a duration in seconds as a race time string.
func FormatSeconds(seconds float64) string {
	if seconds < 0 {
		return "N/A"
	}
	return FormatRaceTime(int64(seconds * 1000))
}

// FormatDuration renders a Go duration as a race time string.
func FormatDuration(d time.Duration) string {
	return FormatRaceTime(d.Milliseconds())
}
