// Package timeutil provides calendar-day helpers for Captus Engine.
// Streaks, "tasks in a day" and the weekly productivity chart are all defined
// in the user's local calendar, so every helper takes an explicit *time.Location
// instead of relying on the process timezone.
package timeutil

import (
	"time"
)

// DateLayout is the canonical day key format ("2024-01-31").
const DateLayout = "2006-01-02"

// DefaultLocation is used when a caller passes a nil location.
var DefaultLocation = time.UTC

// Clock returns the current instant. Injected so tests can pin "today".
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now()
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return DefaultLocation
	}
	return loc
}

func orDefault(loc *time.Location) *time.Location {
	if loc == nil {
		return DefaultLocation
	}
	return loc
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	loc = orDefault(loc)
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// AddDays shifts a local midnight by n calendar days.
// AddDate keeps wall-clock midnight across DST changes, unlike Add(24h).
func AddDays(day time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(StartOfDay(day, loc).AddDate(0, 0, n), loc)
}

// DayKey returns the local calendar date of t as "YYYY-MM-DD".
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orDefault(loc)).Format(DateLayout)
}

// ParseDay parses a "YYYY-MM-DD" key as local midnight.
func ParseDay(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, key, orDefault(loc))
}

// IsSameDay reports whether a and b fall on the same local calendar date.
func IsSameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// DaysBetween returns the signed number of calendar days from a to b.
// Dates are compared as civil dates so DST transitions never produce 23h/25h days.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	loc = orDefault(loc)
	la, lb := a.In(loc), b.In(loc)
	ca := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	cb := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(cb.Sub(ca).Hours() / 24)
}

// IsYesterday reports whether day is exactly one calendar day before today.
func IsYesterday(day, today time.Time, loc *time.Location) bool {
	return DaysBetween(day, today, loc) == 1
}

// LocalHour returns the hour-of-day of t in loc.
func LocalHour(t time.Time, loc *time.Location) int {
	return t.In(orDefault(loc)).Hour()
}

// LocalWeekday returns the weekday of t in loc.
func LocalWeekday(t time.Time, loc *time.Location) time.Weekday {
	return t.In(orDefault(loc)).Weekday()
}

// WeekdayShort returns the short English name used by the productivity chart.
func WeekdayShort(d time.Weekday) string {
	return d.String()[:3]
}

// CivilDate drops the clock and zone of t, keeping its own calendar fields,
// as UTC midnight. Values read from SQL DATE columns are compared this way.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
