package civiltime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadFormat   = errors.New("civiltime: bad format")
	ErrInvalidTime = errors.New("civiltime: time does not exist in zone")
)

var (
	dateTimeRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2}) (\d{2}):(\d{2})$`)
	timeOfDayRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// TimeOfDay is a civil hour and minute.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTimeOfDay accepts "HH:MM" (the hour may have one digit).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("%w: want HH:MM", ErrBadFormat)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	tod := TimeOfDay{Hour: h, Minute: mi}
	if !tod.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %s out of range", ErrBadFormat, tod)
	}
	return tod, nil
}

// ParseInstant accepts "YYYY-MM-DD HH:MM" in the zone and converts it with
// ToInstant. Wall-clock times the zone skips yield ErrInvalidTime.
func (z Zone) ParseInstant(s string) (time.Time, error) {
	m := dateTimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: want YYYY-MM-DD HH:MM", ErrBadFormat)
	}
	n := make([]int, 5)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	t, ok := z.ToInstant(n[0], time.Month(n[1]), n[2], n[3], n[4])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, s)
	}
	return t, nil
}
