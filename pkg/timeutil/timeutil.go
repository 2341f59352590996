// Package timeutil provides calendar helpers for deadlines and reminders.
// Every function takes the location whose calendar days count; a nil
// location means UTC.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the date format used in notifications and listings.
const DateLayout = "2006-01-02"

// In converts t to loc.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// EndOfDay returns the last instant of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysUntil counts calendar days from from to to in loc. It is negative
// when to is on an earlier day.
func DaysUntil(from, to time.Time, loc *time.Location) int {
	a := StartOfDay(from, loc)
	b := StartOfDay(to, loc)
	// Calendar arithmetic, so DST days of 23 or 25 hours still count as one.
	days := 0
	for a.Before(b) {
		a = a.AddDate(0, 0, 1)
		days++
	}
	for b.Before(a) {
		b = b.AddDate(0, 0, 1)
		days--
	}
	return days
}

// FormatDate formats t's day in loc as YYYY-MM-DD.
func FormatDate(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(DateLayout)
}

// FormatDue describes a deadline relative to now: "today", "tomorrow",
// "in 3 days", "yesterday" or "5 days ago".
func FormatDue(now, due time.Time, loc *time.Location) string {
	switch days := DaysUntil(now, due, loc); {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days == -1:
		return "yesterday"
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	default:
		return fmt.Sprintf("%d days ago", -days)
	}
}
