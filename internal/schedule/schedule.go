// Package schedule is the in-memory registry of broadcast schedules.
//
// Records are volatile: nothing survives a restart. The store hands out
// copies, so a schedule is only ever mutated through Store methods.
package schedule

import (
	"errors"
	"time"

	"castbot/internal/civiltime"
	"castbot/internal/payload"
)

type Mode string

const (
	ModeOnce  Mode = "once"
	ModeDaily Mode = "daily"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s != StatusActive }

var (
	ErrNotFound  = errors.New("schedule: not found")
	ErrForbidden = errors.New("schedule: owned by another admin")
	ErrNotActive = errors.New("schedule: not active")
	ErrInvalid   = errors.New("schedule: invalid")
)

// Schedule is a stored intent to deliver a payload once or daily.
type Schedule struct {
	ID      string
	Owner   int64
	Payload payload.Payload
	Mode    Mode
	// Daily is set iff Mode is ModeDaily.
	Daily *civiltime.TimeOfDay

	NextRunAt time.Time
	LastRunAt time.Time
	Status    Status
	CreatedAt time.Time

	Runs      int
	LastSent  int
	LastTotal int
	LastError string
}

func (s Schedule) clone() Schedule {
	cp := s
	cp.Payload = s.Payload.Clone()
	if s.Daily != nil {
		d := *s.Daily
		cp.Daily = &d
	}
	return cp
}

func (s Schedule) validate() error {
	if s.Owner == 0 {
		return errors.Join(ErrInvalid, errors.New("owner is required"))
	}
	if !s.Payload.Supported() {
		return errors.Join(ErrInvalid, payload.ErrUnsupported)
	}
	if s.NextRunAt.IsZero() {
		return errors.Join(ErrInvalid, errors.New("next run is required"))
	}
	switch s.Mode {
	case ModeOnce:
		if s.Daily != nil {
			return errors.Join(ErrInvalid, errors.New("once schedule carries a daily time"))
		}
	case ModeDaily:
		if s.Daily == nil || !s.Daily.Valid() {
			return errors.Join(ErrInvalid, errors.New("daily schedule needs a valid time of day"))
		}
	default:
		return errors.Join(ErrInvalid, errors.New("unknown mode "+string(s.Mode)))
	}
	return nil
}
