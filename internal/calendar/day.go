package calendar

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the canonical calendar day key format used across the service.
const KeyLayout = "2006-01-02"

// DayOf strips the time of day from t as observed in loc. The result is the
// civil date expressed as midnight UTC, so weekday and equality checks behave
// the same regardless of the host time zone.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Key returns the calendar day key of a value produced by DayOf.
func Key(day time.Time) string {
	return day.Format(KeyLayout)
}

// ParseDay accepts either a bare date ("2026-10-20") or an RFC3339 timestamp.
// Timestamps are converted to loc before the date is taken.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if d, err := time.Parse(KeyLayout, value); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q: %w", value, err)
	}
	return DayOf(ts, loc), nil
}

// Before reports whether day a falls strictly before day b.
func Before(a, b time.Time) bool {
	return Key(a) < Key(b)
}

// AddMonths moves day by n calendar months, clamping to the last day of the
// target month instead of spilling into the next one (Dec 31 + 2 is Feb 28).
func AddMonths(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, day.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, day.Location())
}
