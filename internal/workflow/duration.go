package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Duration strings are of the form "<N> minute(s)|hour(s)|day(s)".
// A day is one 8-hour workday: 480 minutes.
const (
	minutesPerHour = 60
	minutesPerDay  = 480
)

var durationPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(minute|min|hour|hr|day)s?\s*$`)

// parseDurationMinutes converts a per-task duration string to minutes.
// Unparseable or empty strings contribute the default estimate.
func parseDurationMinutes(s string, defaultMinutes int) int {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return defaultMinutes
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultMinutes
	}
	switch strings.ToLower(m[2]) {
	case "minute", "min":
		return n
	case "hour", "hr":
		return n * minutesPerHour
	case "day":
		return n * minutesPerDay
	}
	return defaultMinutes
}

// formatMinutes renders minutes back using the same thresholds.
func formatMinutes(minutes int) string {
	switch {
	case minutes >= minutesPerDay && minutes%minutesPerDay == 0:
		return plural(minutes/minutesPerDay, "day")
	case minutes >= minutesPerHour && minutes%minutesPerHour == 0:
		return plural(minutes/minutesPerHour, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
