// Package timeutil converts between date-keys (YYYY-MM-DD), clock strings (HH:MM)
// and minute offsets. Every function is pure.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateKeyLayout is the canonical layout of a date-key.
	DateKeyLayout = "2006-01-02"
	// ClockLayout is the layout of a clock string.
	ClockLayout = "15:04"

	MinutesPerDay = 24 * 60
	// DefaultDurationMinutes is the window length assumed when a task has no end time.
	DefaultDurationMinutes = 60
)

// ParseDate parses a date-key as local midnight of that day.
func ParseDate(dateKey string) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, dateKey, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", dateKey, err)
	}
	return t, nil
}

// IsDateKey reports whether s is a valid date-key.
func IsDateKey(s string) bool {
	_, err := time.Parse(DateKeyLayout, s)
	return err == nil
}

// FormatDate returns the date-key of t in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// AddDaysToDate adds n calendar days to a date-key. Month and year rollover are
// handled by time.Date normalization; no timezone conversion takes place.
func AddDaysToDate(dateKey string, n int) (string, error) {
	t, err := ParseDate(dateKey)
	if err != nil {
		return "", err
	}
	return FormatDate(time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, t.Location())), nil
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	ua := time.Date(ta.Year(), ta.Month(), ta.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(tb.Year(), tb.Month(), tb.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24), nil
}

// DateInRange reports whether from <= date <= to. Date-keys compare
// lexicographically in calendar order.
func DateInRange(date, from, to string) bool {
	return date >= from && date <= to
}

// MinutesFromTime parses "HH:MM" into minutes since midnight. Both parts must be
// exactly two digits so that clock strings order lexicographically. The second
// result is false for empty or malformed input; callers treat that as "no time".
func MinutesFromTime(clock string) (int, bool) {
	h, m, ok := strings.Cut(clock, ":")
	if !ok || !twoDigits(h) || !twoDigits(m) {
		return 0, false
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours > 23 {
		return 0, false
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes > 59 {
		return 0, false
	}
	return hours*60 + minutes, true
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// IsClock reports whether s is a well-formed "HH:MM" string.
func IsClock(s string) bool {
	_, ok := MinutesFromTime(s)
	return ok
}

// TimeFromMinutes formats a minute offset as "HH:MM", wrapping modulo 24 hours.
func TimeFromMinutes(minutes int) string {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DefaultEndTime returns start + 60 minutes, wrapping past midnight. An invalid
// start yields an empty string.
func DefaultEndTime(start string) string {
	m, ok := MinutesFromTime(start)
	if !ok {
		return ""
	}
	return TimeFromMinutes(m + DefaultDurationMinutes)
}

// CurrentTimeString formats t as "HH:MM".
func CurrentTimeString(t time.Time) string {
	return t.Format(ClockLayout)
}

// MinutesOfDay returns the minutes since midnight of t.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// At combines a date-key and a minute offset into a time in loc.
func At(dateKey string, minutes int, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, dateKey, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", dateKey, err)
	}
	return t.Add(time.Duration(minutes) * time.Minute), nil
}
