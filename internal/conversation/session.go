// Package conversation holds per-admin multi-step flow state.
//
// A Session is a closed set of step types; each carries only the fields its
// step needs. Idle is the absence of a session.
package conversation

import (
	"sync"

	"castbot/internal/payload"
)

type Step string

const (
	StepIdle                 Step = "idle"
	StepWaitingForMessage    Step = "waiting_for_message"
	StepChoosingDelivery     Step = "choosing_delivery"
	StepWaitingForOnceAt     Step = "waiting_for_schedule_once_at"
	StepWaitingForDailyAt    Step = "waiting_for_schedule_daily_at"
	StepWaitingForEditTime   Step = "waiting_for_edit_time"
	StepWaitingForReplaceMsg Step = "waiting_for_replace_message"
)

// Session is implemented only by the step types of this package.
type Session interface {
	Step() Step
	session()
}

type WaitingForMessage struct{}

type ChoosingDelivery struct{ Payload payload.Payload }

type WaitingForOnceAt struct{ Payload payload.Payload }

type WaitingForDailyAt struct{ Payload payload.Payload }

type WaitingForEditTime struct{ ScheduleID string }

type WaitingForReplaceMessage struct{ ScheduleID string }

func (WaitingForMessage) Step() Step        { return StepWaitingForMessage }
func (ChoosingDelivery) Step() Step         { return StepChoosingDelivery }
func (WaitingForOnceAt) Step() Step         { return StepWaitingForOnceAt }
func (WaitingForDailyAt) Step() Step        { return StepWaitingForDailyAt }
func (WaitingForEditTime) Step() Step       { return StepWaitingForEditTime }
func (WaitingForReplaceMessage) Step() Step { return StepWaitingForReplaceMsg }

func (WaitingForMessage) session()        {}
func (ChoosingDelivery) session()         {}
func (WaitingForOnceAt) session()         {}
func (WaitingForDailyAt) session()        {}
func (WaitingForEditTime) session()       {}
func (WaitingForReplaceMessage) session() {}

// Registry maps an admin id to that admin's single session.
type Registry struct {
	mu    sync.Mutex
	m     map[int64]Session
	turns map[int64]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{m: map[int64]Session{}, turns: map[int64]*sync.Mutex{}}
}

// Lock serializes the handling of one admin's updates so a read-advance
// sequence on a session is never interleaved. The returned func unlocks.
func (r *Registry) Lock(admin int64) (unlock func()) {
	r.mu.Lock()
	t, ok := r.turns[admin]
	if !ok {
		t = &sync.Mutex{}
		r.turns[admin] = t
	}
	r.mu.Unlock()
	t.Lock()
	return t.Unlock
}

// Get returns the admin's session, or nil when idle.
func (r *Registry) Get(admin int64) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[admin]
}

// StepOf is Get(admin).Step() with idle for no session.
func (r *Registry) StepOf(admin int64) Step {
	if s := r.Get(admin); s != nil {
		return s.Step()
	}
	return StepIdle
}

// Set overwrites any previous session for admin. A nil session clears it.
func (r *Registry) Set(admin int64, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil {
		delete(r.m, admin)
		return
	}
	r.m[admin] = s
}

func (r *Registry) Clear(admin int64) { r.Set(admin, nil) }

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
