package service

import (
	"fmt"
	"time"
)

// parseClock turns a 24h "HH:MM" into minutes past midnight.
func parseClock(s string) (int, error) {
	if len(s) != 5 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InQuietHours reports whether now, seen in loc, falls inside [start, end).
// A window with start after end wraps past midnight; start == end is no window.
func InQuietHours(now time.Time, start, end string, loc *time.Location) bool {
	s, err := parseClock(start)
	if err != nil {
		return false
	}
	e, err := parseClock(end)
	if err != nil || s == e {
		return false
	}

	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	if s < e {
		return m >= s && m < e
	}
	return m >= s || m < e
}

// loadLocation falls back to def when name is empty or unknown to the tz database.
func loadLocation(name string, def *time.Location) *time.Location {
	if name == "" {
		return def
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return def
	}
	return loc
}
