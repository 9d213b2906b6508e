package models

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Day truncates t to midnight UTC of its calendar date in t's own location.
// Appointment and queue dates are always stored in this form.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts "2006-01-02" or an RFC3339 timestamp (interpreted in loc).
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return Day(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Day(t.In(loc)), nil
}

// Today is the current calendar day in the clinic time zone.
func Today(now time.Time, loc *time.Location) time.Time {
	return Day(now.In(loc))
}

// At combines a stored day with a wall-clock time in loc.
func At(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc), nil
}

// CheckInWindow is the clock range, clamped to the current day, in which a
// scheduled appointment is moved into the waiting queue.
func CheckInWindow(now time.Time, loc *time.Location, margin time.Duration) (day time.Time, from, to string) {
	local := now.In(loc)
	day = Day(local)
	current := local.Hour()*60 + local.Minute()
	m := int(margin / time.Minute)

	lo, hi := current-m, current+m
	if lo < 0 {
		lo = 0
	}
	if hi > 23*60+59 {
		hi = 23*60 + 59
	}
	return day, FormatClock(lo), FormatClock(hi)
}
