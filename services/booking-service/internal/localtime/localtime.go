// Package localtime converts between a business's wall-clock time and instants.
//
// Availability rules are authored as local dates and clock times, while
// appointments are stored as instants. Date and Clock carry no zone; a
// *time.Location is supplied at conversion time.
package localtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
)

// ErrNonexistentLocalTime is returned for wall-clock times skipped by a DST
// transition (e.g. 02:30 on a spring-forward day).
var ErrNonexistentLocalTime = errors.New("nonexistent local time")

const (
	DateLayout = "2006-01-02"

	// EndOfDay is the 24:00 clock, valid only as an interval end.
	EndOfDay Clock = 24 * 60
)

type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, apperr.Invalid("date %q must be YYYY-MM-DD", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string { return d.utc().Format(DateLayout) }
func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }
func (d Date) AddDays(n int) Date { return NewDate(d.Year, d.Month, d.Day+n) }
func (d Date) IsZero() bool { return d == Date{} }
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }
func (d Date) Compare(other Date) int { return d.utc().Compare(other.utc()) }
func (d Date) DaysUntil(other Date) int { return int(other.utc().Sub(d.utc()).Hours() / 24) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a wall-clock time as minutes since local midnight, 0..1440.
type Clock int

func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && strings.HasSuffix(s, ":00") {
		s = s[:5] // HH:mm:ss as returned by Postgres time columns
	}
	if len(s) != 5 || s[2] != ':' {
		return 0, apperr.Invalid("time %q must be HH:mm", s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil || s[0] == '+' || s[0] == '-' || s[3] == '+' || s[3] == '-' {
		return 0, apperr.Invalid("time %q must be HH:mm", s)
	}
	if h == 24 && m == 0 {
		return EndOfDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, apperr.Invalid("time %q out of range", s)
	}
	return Clock(h*60 + m), nil
}

// ClockOf builds a clock from hour and minute without validation.
func ClockOf(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// LoadZone resolves an IANA zone name. The empty name and "Local" are
// rejected so results never depend on the host configuration.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidTimezone, name)
	}
	return loc, nil
}

// ToInstant returns the instant at which loc's wall clock reads date+clock.
// A 24:00 clock means midnight of the following day. When the wall-clock time
// occurs twice (DST fall-back) the later instant is returned; when it does not
// occur at all ErrNonexistentLocalTime is returned.
func ToInstant(date Date, clock Clock, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, apperr.ErrInvalidTimezone
	}
	if clock < 0 || clock > EndOfDay {
		return time.Time{}, apperr.Invalid("clock %d out of range", int(clock))
	}
	if clock == EndOfDay {
		date, clock = date.AddDays(1), 0
	}
	wall := time.Date(date.Year, date.Month, date.Day, clock.Hour(), clock.Minute(), 0, 0, time.UTC)

	var (
		best  time.Time
		found bool
		seen  = map[int]bool{}
	)
	// Offsets in effect a day either side of the wall time cover any single
	// transition on that date.
	for _, probe := range []time.Time{wall.Add(-24 * time.Hour), wall, wall.Add(24 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true

		candidate := wall.Add(-time.Duration(offset) * time.Second)
		local := candidate.In(loc)
		if local.Year() != wall.Year() || local.Month() != wall.Month() || local.Day() != wall.Day() ||
			local.Hour() != wall.Hour() || local.Minute() != wall.Minute() {
			continue
		}
		if !found || candidate.After(best) {
			best, found = candidate, true
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("%s %s in %s: %w", date, clock, loc, ErrNonexistentLocalTime)
	}
	return best.UTC(), nil
}

// ToLocal returns the wall-clock date and minute of t in loc. Seconds are truncated.
func ToLocal(t time.Time, loc *time.Location) (Date, Clock) {
	lt := t.In(loc)
	return DateOf(lt), ClockOf(lt.Hour(), lt.Minute())
}
