package schedule

import (
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// MinutesPerDay bounds a day-scoped minute value.
const MinutesPerDay = 24 * 60

// ParseClock converts an "HH:MM" string into minutes since midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, appErrors.FieldInvalid("time", fmt.Sprintf("invalid time %q, expected HH:MM", raw))
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, appErrors.FieldInvalid("time", fmt.Sprintf("invalid hour in %q", raw))
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, appErrors.FieldInvalid("time", fmt.Sprintf("invalid minute in %q", raw))
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	minutes %= MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// RangesOverlap reports whether two half-open minute ranges intersect.
func RangesOverlap(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}
