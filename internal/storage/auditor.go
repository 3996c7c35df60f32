package storage

import (
	"context"
	"time"

	"castbot/internal/eventbus"
	logx "castbot/pkg/logx"
)

// Auditor turns bus events into journal entries.
type Auditor struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewAuditor(store Store, bus eventbus.Bus, log logx.Logger) *Auditor {
	return &Auditor{store: store, bus: bus, log: log.With(logx.String("comp", "audit"))}
}

// Run consumes events until ctx ends. It subscribes on entry; events
// published earlier are not journaled.
func (a *Auditor) Run(ctx context.Context) error {
	ch, unsub := a.bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e, keep := EntryFromEvent(ev)
			if !keep {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := a.store.AppendAudit(wctx, e); err != nil {
				a.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
			}
			cancel()
		}
	}
}

// EntryFromEvent maps a known event to an audit entry.
func EntryFromEvent(ev eventbus.Event) (AuditEntry, bool) {
	e := AuditEntry{At: ev.Time, Action: ev.Type}
	switch d := ev.Data.(type) {
	case eventbus.ScheduleInfo:
		e.ActorID = d.Owner
		e.ScheduleID = d.ID
		e.Summary = d.Summary
		e.OK = d.Sent
		e.Fail = d.Total - d.Sent
		e.Error = d.Err
	case eventbus.BroadcastInfo:
		if d.ScheduleID != "" {
			// Scheduled runs are journaled by schedule.ran.
			return AuditEntry{}, false
		}
		e.ActorID = d.Admin
		e.Summary = d.Summary
		e.OK = d.Sent
		e.Fail = d.Total - d.Sent
	case eventbus.RecipientInfo:
		e.ActorID = d.ChatID
		e.Summary = d.Name
	default:
		return AuditEntry{}, false
	}
	if e.Fail < 0 {
		e.Fail = 0
	}
	return e, true
}
