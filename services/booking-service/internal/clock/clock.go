// Package clock holds the single operating timezone and the date/time-of-day formats the
// engine stores: dates as YYYY-MM-DD, times of day as HH:MM.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock accepts HH:MM and HH:MM:SS.
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	if len(parts) == 3 {
		if s, err := strconv.Atoi(parts[2]); err != nil || s != 0 {
			return 0, fmt.Errorf("invalid time %q", raw)
		}
	}
	return Clock(h*60 + m), nil
}

func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// ParseDate returns midnight UTC of a YYYY-MM-DD date. Use Zone.At to place it in the
// operating timezone.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Zone is the operating timezone. All past/future decisions go through it so nothing
// depends on the host locale.
type Zone struct {
	loc *time.Location
	now func() time.Time
}

// LoadZone resolves an IANA name; empty means UTC.
func LoadZone(name string) (*Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewZone(time.UTC, nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewZone(loc, nil), nil
}

func NewZone(loc *time.Location, now func() time.Time) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Zone{loc: loc, now: now}
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) Now() time.Time { return z.now().In(z.loc) }

func (z *Zone) Today() string { return FormatDate(z.Now()) }

// At places a date and time of day in the operating timezone.
func (z *Zone) At(date string, at Clock) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), int(at)/60, int(at)%60, 0, 0, z.loc), nil
}

// WallClock returns the zone's current local date and time carried in a UTC value, so it
// compares directly with WallTime.
func (z *Zone) WallClock() time.Time {
	n := z.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), time.UTC)
}

// WallTime is date at the given time of day, zone-free.
func WallTime(date string, at Clock) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(at.Duration()), nil
}

// IsPast reports whether date+end lies before now. Malformed input is never past.
func (z *Zone) IsPast(date, end string) bool {
	return EndsBefore(date, end, z.WallClock())
}

// EndsBefore reports whether date+end lies before the wall-clock cutoff. Malformed input
// never does.
func EndsBefore(date, end string, cutoff time.Time) bool {
	c, err := ParseClock(end)
	if err != nil {
		return false
	}
	t, err := WallTime(date, c)
	if err != nil {
		return false
	}
	return t.Before(cutoff)
}
