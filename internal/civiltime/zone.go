// Package civiltime does all "when" arithmetic in one fixed civil timezone.
//
// Admin-entered clock times are interpreted in the configured zone, never in
// the process local time or naive UTC, so a deployment in another locale
// schedules the same instants.
package civiltime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// refineRounds bounds the offset refinement in ToInstant.
	refineRounds = 3
	// dailyHorizonDays bounds the forward scan in NextDaily.
	dailyHorizonDays = 14
)

var ErrUnknownZone = errors.New("civiltime: unknown timezone")

// Parts is an instant decomposed into civil fields of a Zone.
type Parts struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Zone is a fixed IANA timezone. The zero value behaves as UTC.
type Zone struct {
	loc *time.Location
}

// Load resolves an IANA zone name such as "Asia/Jakarta".
func Load(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Zone{}, fmt.Errorf("%w: empty name", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q: %v", ErrUnknownZone, name, err)
	}
	return Zone{loc: loc}, nil
}

func New(loc *time.Location) Zone { return Zone{loc: loc} }

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z Zone) Name() string { return z.Location().String() }

// Parts decomposes t into civil fields of the zone.
func (z Zone) Parts(t time.Time) Parts {
	c := t.In(z.Location())
	return Parts{
		Year:   c.Year(),
		Month:  c.Month(),
		Day:    c.Day(),
		Hour:   c.Hour(),
		Minute: c.Minute(),
		Second: c.Second(),
	}
}

// ToInstant converts a civil date and time of day to an absolute instant.
//
// The first guess assumes a zero offset; the zone offset at the guess is then
// re-applied a bounded number of times. The result must decompose back to the
// exact requested fields, otherwise ok is false. That covers wall-clock times
// skipped by a DST gap as well as out-of-range fields.
func (z Zone) ToInstant(year int, month time.Month, day, hour, minute int) (t time.Time, ok bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}
	loc := z.Location()

	naive := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	guess := naive
	for i := 0; i < refineRounds; i++ {
		_, off := guess.In(loc).Zone()
		next := naive.Add(-time.Duration(off) * time.Second)
		if next.Equal(guess) {
			break
		}
		guess = next
	}

	p := z.Parts(guess)
	if p.Year != year || p.Month != month || p.Day != day || p.Hour != hour || p.Minute != minute || p.Second != 0 {
		return time.Time{}, false
	}
	return guess.In(loc), true
}

// NextDaily returns the first instant strictly after from whose civil time of
// day is hour:minute. Days where that wall-clock time does not exist are
// skipped. If nothing is found within the horizon, from+24h is returned.
func (z Zone) NextDaily(hour, minute int, from time.Time) time.Time {
	start := z.Parts(from)
	for i := 0; i <= dailyHorizonDays; i++ {
		// Noon UTC normalizes the calendar day without touching DST edges.
		d := time.Date(start.Year, start.Month, start.Day+i, 12, 0, 0, 0, time.UTC)
		t, ok := z.ToInstant(d.Year(), d.Month(), d.Day(), hour, minute)
		if ok && t.After(from) {
			return t
		}
	}
	return from.Add(24 * time.Hour)
}

// Format renders t as "YYYY-MM-DD HH:MM <zone>".
func (z Zone) Format(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	p := z.Parts(t)
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d %s", p.Year, int(p.Month), p.Day, p.Hour, p.Minute, z.Name())
}
