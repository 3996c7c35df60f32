package engine

import (
	"context"
	"fmt"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	logx "castbot/pkg/logx"
)

// Tick runs one pass over due schedules and returns how many it executed.
// If a previous pass is still running the call does nothing.
func (e *Engine) Tick(ctx context.Context) int {
	if !e.ticking.CompareAndSwap(false, true) {
		e.log.Debug("tick skipped, previous pass still running")
		return 0
	}
	defer e.ticking.Store(false)

	due := e.store.Due(e.now())
	if len(due) == 0 {
		return 0
	}
	e.log.Debug("tick pass", logx.Int("due", len(due)))
	ran := 0
	for _, s := range due {
		if e.run(ctx, s) {
			ran++
		}
	}
	return ran
}

func (e *Engine) run(ctx context.Context, s schedule.Schedule) bool {
	if !e.acquire(s.ID) {
		return false
	}
	defer e.release(s.ID)

	log := e.log.With(logx.String("schedule", s.ID), logx.Int64("owner", s.Owner), logx.String("mode", string(s.Mode)))
	res, err := e.Broadcast(ctx, s.Payload)
	if err != nil {
		updated, merr := e.store.MarkFailed(s.ID, s.NextRunAt, e.nextAfterRun(s), err)
		if merr != nil {
			log.Warn("mark failed", logx.Err(merr))
			updated = s
		}
		log.Warn("scheduled broadcast failed", logx.Err(err))
		e.publish(eventbus.ScheduleFailed, scheduleInfo(updated))
		e.notify(ctx, s.Owner, 9, e.failureText(updated, err))
		return true
	}

	ranAt := e.now()
	updated, merr := e.store.MarkRan(s.ID, s.NextRunAt, ranAt, e.nextAfterRun(s), res.Sent, res.Total)
	if merr != nil {
		log.Warn("mark ran", logx.Err(merr))
		updated = s
	}
	log.Info("scheduled broadcast delivered", logx.Int("sent", res.Sent), logx.Int("total", res.Total))
	e.publish(eventbus.ScheduleRan, scheduleInfo(updated))
	e.publish(eventbus.BroadcastSent, eventbus.BroadcastInfo{ScheduleID: s.ID, Admin: s.Owner, Summary: s.Payload.Summary(), Sent: res.Sent, Total: res.Total})
	e.notify(ctx, s.Owner, 5, e.successText(updated, res))
	return true
}

// nextAfterRun is the following daily occurrence counted from now, or zero
// for once schedules. It is anchored on now, not on the previous NextRunAt,
// so a pass delayed past the next occurrence skips that day.
func (e *Engine) nextAfterRun(s schedule.Schedule) time.Time {
	if s.Mode != schedule.ModeDaily || s.Daily == nil {
		return time.Time{}
	}
	return e.zone.NextDaily(s.Daily.Hour, s.Daily.Minute, e.now().Add(e.epsilon))
}

func (e *Engine) successText(s schedule.Schedule, res Result) string {
	text := fmt.Sprintf("✅ Scheduled broadcast delivered to %d/%d recipients.\n%s", res.Sent, res.Total, s.Payload.Summary())
	if s.Mode == schedule.ModeDaily && s.Status == schedule.StatusActive {
		text += "\nNext run: " + e.zone.Format(s.NextRunAt)
	}
	return text
}

func (e *Engine) failureText(s schedule.Schedule, err error) string {
	text := fmt.Sprintf("❌ Scheduled broadcast failed: %v\n%s", err, s.Payload.Summary())
	if s.Mode == schedule.ModeDaily && s.Status == schedule.StatusActive {
		text += "\nIt stays active; next run: " + e.zone.Format(s.NextRunAt)
	}
	return text
}
