// Package engine is castbot's broadcast scheduler: the admin conversation
// that turns a message into a schedule, the tick pass that runs due
// schedules, and the fan-out to every registered recipient.
//
// All mutable state (schedules, sessions, in-flight markers) is owned by an
// Engine and changed only through its methods.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"castbot/internal/civiltime"
	"castbot/internal/conversation"
	"castbot/internal/directory"
	"castbot/internal/eventbus"
	"castbot/internal/payload"
	"castbot/internal/schedule"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// CallbackPlugin prefixes every callback the engine renders.
const CallbackPlugin = "bc"

// Inline button actions.
const (
	ActionNow     = "now"
	ActionOnce    = "once"
	ActionDaily   = "daily"
	ActionAbort   = "abort"
	ActionList    = "list"
	ActionOpen    = "open"
	ActionStop    = "stop"
	ActionEdit    = "edit"
	ActionReplace = "replace"
	ActionBack    = "back"
)

// DefaultEpsilon pushes the daily recomputation past the instant just run.
const DefaultEpsilon = time.Second

// Messenger is the transport surface the engine talks through.
type Messenger interface {
	payload.Sender
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Notifier delivers best-effort outcome messages to admins.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	Zone    civiltime.Zone
	Admins  []int64
	Epsilon time.Duration
}

type Deps struct {
	Messenger Messenger
	Directory directory.Directory
	Notifier  Notifier
	Bus       eventbus.Bus
	Log       logx.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	msg      Messenger
	dir      directory.Directory
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	zone    civiltime.Zone
	epsilon time.Duration
	admins  atomic.Pointer[map[int64]struct{}]

	store    *schedule.Store
	sessions *conversation.Registry

	ticking    atomic.Bool
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func New(cfg Config, d Deps) (*Engine, error) {
	if d.Messenger == nil {
		return nil, errors.New("engine: messenger is required")
	}
	if d.Directory == nil {
		return nil, errors.New("engine: directory is required")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	e := &Engine{
		msg:      d.Messenger,
		dir:      d.Directory,
		notifier: d.Notifier,
		bus:      d.Bus,
		log:      d.Log.With(logx.String("comp", "engine")),
		now:      d.Now,
		zone:     cfg.Zone,
		epsilon:  cfg.Epsilon,
		store:    schedule.NewStore(),
		sessions: conversation.NewRegistry(),
		inflight: map[string]struct{}{},
	}
	e.SetAdmins(cfg.Admins)
	return e, nil
}

// SetAdmins swaps the allow-list. Safe during hot reload.
func (e *Engine) SetAdmins(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	e.admins.Store(&m)
}

func (e *Engine) IsAdmin(id int64) bool {
	m := e.admins.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[id]
	return ok
}

func (e *Engine) Zone() civiltime.Zone { return e.zone }

// Schedules exposes the store for read-mostly callers (tests, status views).
func (e *Engine) Schedules() *schedule.Store { return e.store }

// Step reports the admin's conversation step.
func (e *Engine) Step(admin int64) conversation.Step { return e.sessions.StepOf(admin) }

// InFlight is the number of schedules currently executing.
func (e *Engine) InFlight() int {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	return len(e.inflight)
}

func (e *Engine) acquire(id string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.inflightMu.Lock()
	delete(e.inflight, id)
	e.inflightMu.Unlock()
}

func (e *Engine) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := e.msg.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		e.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (e *Engine) notify(ctx context.Context, admin int64, priority int, text string) {
	if e.notifier == nil {
		e.reply(ctx, kit.ChatTarget{ChatID: admin}, text)
		return
	}
	err := e.notifier.Notify(ctx, kit.Notification{
		Channel:  "telegram",
		Priority: priority,
		Target:   kit.ChatTarget{ChatID: admin},
		Text:     text,
		Options:  &kit.SendOptions{DisablePreview: true},
	})
	if err != nil {
		// A disabled or saturated notifier must not swallow the outcome.
		e.log.Debug("admin notify failed, replying directly", logx.Int64("admin", admin), logx.Err(err))
		e.reply(ctx, kit.ChatTarget{ChatID: admin}, text)
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}

func scheduleInfo(s schedule.Schedule) eventbus.ScheduleInfo {
	return eventbus.ScheduleInfo{
		ID:      s.ID,
		Owner:   s.Owner,
		Mode:    string(s.Mode),
		Summary: s.Payload.Summary(),
		NextRun: s.NextRunAt,
		Sent:    s.LastSent,
		Total:   s.LastTotal,
		Err:     s.LastError,
	}
}
