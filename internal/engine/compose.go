package engine

import (
	"context"
	"errors"
	"strings"

	"castbot/internal/civiltime"
	"castbot/internal/conversation"
	"castbot/internal/eventbus"
	"castbot/internal/payload"
	"castbot/internal/schedule"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

// StartCompose opens a fresh draft for admin, replacing any session in
// progress. Non-admins get an explicit denial.
func (e *Engine) StartCompose(ctx context.Context, admin int64, chat kit.ChatTarget) {
	if !e.IsAdmin(admin) {
		e.reply(ctx, chat, textDenied)
		return
	}
	unlock := e.sessions.Lock(admin)
	defer unlock()
	e.sessions.Set(admin, conversation.WaitingForMessage{})
	e.reply(ctx, chat, textComposePrompt)
}

// CancelSession drops whatever admin was doing. Non-admins are ignored.
func (e *Engine) CancelSession(ctx context.Context, admin int64, chat kit.ChatTarget) {
	if !e.IsAdmin(admin) {
		return
	}
	unlock := e.sessions.Lock(admin)
	defer unlock()
	if e.sessions.Get(admin) == nil {
		e.reply(ctx, chat, "Nothing to cancel.")
		return
	}
	e.sessions.Clear(admin)
	e.reply(ctx, chat, "Cancelled.")
}

// ListSchedules sends admin's active schedules. Non-admins are ignored.
func (e *Engine) ListSchedules(ctx context.Context, admin int64, chat kit.ChatTarget) {
	if !e.IsAdmin(admin) {
		return
	}
	if _, err := e.listView(admin).Send(ctx, e.msg, chat); err != nil {
		e.log.Warn("send schedule list failed", logx.Err(err))
	}
}

// HandleMessage feeds a non-command message into the sender's session and
// reports whether it was consumed. Messages from non-admins or from admins
// without a session are left alone.
func (e *Engine) HandleMessage(ctx context.Context, msg *kit.Message) bool {
	if msg == nil || !e.IsAdmin(msg.FromID) {
		return false
	}
	admin := msg.FromID
	unlock := e.sessions.Lock(admin)
	defer unlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	switch s := e.sessions.Get(admin).(type) {
	case nil:
		return false
	case conversation.WaitingForMessage:
		e.onDraft(ctx, admin, chat, msg)
	case conversation.ChoosingDelivery:
		e.reply(ctx, chat, textUseButtons)
	case conversation.WaitingForOnceAt:
		e.onOnceAt(ctx, admin, chat, s.Payload, msg.Text)
	case conversation.WaitingForDailyAt:
		e.onDailyAt(ctx, admin, chat, s.Payload, msg.Text)
	case conversation.WaitingForEditTime:
		e.onEditTime(ctx, admin, chat, s.ScheduleID, msg.Text)
	case conversation.WaitingForReplaceMessage:
		e.onReplace(ctx, admin, chat, s.ScheduleID, msg)
	}
	return true
}

func (e *Engine) onDraft(ctx context.Context, admin int64, chat kit.ChatTarget, msg *kit.Message) {
	p, err := payload.Capture(msg)
	if err != nil {
		e.reply(ctx, chat, textUnsupported)
		return
	}
	e.sessions.Set(admin, conversation.ChoosingDelivery{Payload: p})
	if err := payload.Deliver(ctx, e.msg, chat, p); err != nil {
		e.log.Warn("draft preview failed", logx.Int64("admin", admin), logx.Err(err))
		e.sessions.Clear(admin)
		e.reply(ctx, chat, textPreviewFailed)
		return
	}
	if _, err := e.deliveryView().Send(ctx, e.msg, chat); err != nil {
		e.log.Warn("send delivery options failed", logx.Err(err))
	}
}

func (e *Engine) onOnceAt(ctx context.Context, admin int64, chat kit.ChatTarget, p payload.Payload, text string) {
	at, err := e.zone.ParseInstant(strings.TrimSpace(text))
	if err != nil {
		e.reply(ctx, chat, "⚠️ "+inputError(err)+"\n"+e.onceHint())
		return
	}
	if !at.After(e.now()) {
		e.reply(ctx, chat, "⚠️ That time is not in the future.\n"+e.onceHint())
		return
	}
	s, err := e.store.Create(schedule.Schedule{
		Owner:     admin,
		Payload:   p,
		Mode:      schedule.ModeOnce,
		NextRunAt: at,
		CreatedAt: e.now(),
	})
	if err != nil {
		e.abandon(ctx, admin, chat, err)
		return
	}
	e.sessions.Clear(admin)
	e.created(ctx, chat, s)
}

func (e *Engine) onDailyAt(ctx context.Context, admin int64, chat kit.ChatTarget, p payload.Payload, text string) {
	tod, err := civiltime.ParseTimeOfDay(strings.TrimSpace(text))
	if err != nil {
		e.reply(ctx, chat, "⚠️ "+inputError(err)+"\n"+e.dailyHint())
		return
	}
	s, err := e.store.Create(schedule.Schedule{
		Owner:     admin,
		Payload:   p,
		Mode:      schedule.ModeDaily,
		Daily:     &tod,
		NextRunAt: e.zone.NextDaily(tod.Hour, tod.Minute, e.now()),
		CreatedAt: e.now(),
	})
	if err != nil {
		e.abandon(ctx, admin, chat, err)
		return
	}
	e.sessions.Clear(admin)
	e.created(ctx, chat, s)
}

func (e *Engine) created(ctx context.Context, chat kit.ChatTarget, s schedule.Schedule) {
	e.log.Info("schedule created", logx.String("schedule", s.ID), logx.Int64("owner", s.Owner), logx.String("mode", string(s.Mode)), logx.Time("next_run", s.NextRunAt))
	e.publish(eventbus.ScheduleCreated, scheduleInfo(s))
	e.reply(ctx, chat, "✅ Scheduled ("+modeLabel(s)+"). Next run: "+e.zone.Format(s.NextRunAt)+"\nSee /schedules.")
}

func (e *Engine) onEditTime(ctx context.Context, admin int64, chat kit.ChatTarget, id, text string) {
	s, err := e.store.Owned(admin, id)
	if err != nil {
		e.gone(ctx, admin, chat)
		return
	}
	text = strings.TrimSpace(text)
	var updated schedule.Schedule
	if s.Mode == schedule.ModeDaily {
		tod, perr := civiltime.ParseTimeOfDay(text)
		if perr != nil {
			e.reply(ctx, chat, "⚠️ "+inputError(perr)+"\n"+e.dailyHint())
			return
		}
		updated, err = e.store.Reschedule(admin, id, e.zone.NextDaily(tod.Hour, tod.Minute, e.now()), &tod)
	} else {
		at, perr := e.zone.ParseInstant(text)
		if perr != nil {
			e.reply(ctx, chat, "⚠️ "+inputError(perr)+"\n"+e.onceHint())
			return
		}
		if !at.After(e.now()) {
			e.reply(ctx, chat, "⚠️ That time is not in the future.\n"+e.onceHint())
			return
		}
		updated, err = e.store.Reschedule(admin, id, at, nil)
	}
	if err != nil {
		e.gone(ctx, admin, chat)
		return
	}
	e.sessions.Clear(admin)
	e.publish(eventbus.ScheduleRescheduled, scheduleInfo(updated))
	e.reply(ctx, chat, "✅ Updated. Next run: "+e.zone.Format(updated.NextRunAt))
}

func (e *Engine) onReplace(ctx context.Context, admin int64, chat kit.ChatTarget, id string, msg *kit.Message) {
	if _, err := e.store.Owned(admin, id); err != nil {
		e.gone(ctx, admin, chat)
		return
	}
	p, err := payload.Capture(msg)
	if err != nil {
		e.reply(ctx, chat, textUnsupported)
		return
	}
	updated, err := e.store.ReplacePayload(admin, id, p)
	if err != nil {
		e.gone(ctx, admin, chat)
		return
	}
	e.sessions.Clear(admin)
	e.publish(eventbus.ScheduleReplaced, scheduleInfo(updated))
	e.reply(ctx, chat, "✅ Message replaced: "+updated.Payload.Summary())
}

// HandleAction applies an inline-button action. Non-admins are ignored.
func (e *Engine) HandleAction(ctx context.Context, cb *kit.Callback, action, arg string) {
	if cb == nil || !e.IsAdmin(cb.FromID) {
		return
	}
	admin := cb.FromID
	unlock := e.sessions.Lock(admin)
	defer unlock()

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	switch action {
	case ActionNow, ActionOnce, ActionDaily:
		cur := e.sessions.Get(admin)
		draft, ok := cur.(conversation.ChoosingDelivery)
		if !ok {
			// A button from an older draft must not disturb another step.
			if cur == nil {
				e.reply(ctx, chat, textDraftExpired)
			}
			return
		}
		switch action {
		case ActionNow:
			e.sessions.Clear(admin)
			e.sendNow(ctx, admin, chat, draft.Payload)
		case ActionOnce:
			e.sessions.Set(admin, conversation.WaitingForOnceAt{Payload: draft.Payload})
			e.reply(ctx, chat, e.onceHint())
		case ActionDaily:
			e.sessions.Set(admin, conversation.WaitingForDailyAt{Payload: draft.Payload})
			e.reply(ctx, chat, e.dailyHint())
		}
	case ActionAbort:
		// Abort only discards a draft, never a pending edit or replace.
		switch e.sessions.Get(admin).(type) {
		case conversation.WaitingForMessage, conversation.ChoosingDelivery:
		default:
			return
		}
		e.sessions.Clear(admin)
		e.reply(ctx, chat, "Draft discarded.")
	case ActionList, ActionBack:
		e.show(ctx, chat, ref, e.listView(admin))
	case ActionOpen:
		s, err := e.store.Owned(admin, arg)
		if err != nil {
			e.reply(ctx, chat, textGone)
			e.show(ctx, chat, ref, e.listView(admin))
			return
		}
		e.show(ctx, chat, ref, e.detailView(s))
	case ActionStop:
		s, err := e.store.Cancel(admin, arg)
		if err != nil {
			e.reply(ctx, chat, textGone)
		} else {
			e.log.Info("schedule cancelled", logx.String("schedule", s.ID), logx.Int64("owner", admin))
			e.publish(eventbus.ScheduleCancelled, scheduleInfo(s))
			e.reply(ctx, chat, "🗑 Cancelled: "+s.Payload.Summary())
		}
		e.show(ctx, chat, ref, e.listView(admin))
	case ActionEdit:
		s, err := e.store.Owned(admin, arg)
		if err != nil {
			e.gone(ctx, admin, chat)
			return
		}
		e.sessions.Set(admin, conversation.WaitingForEditTime{ScheduleID: s.ID})
		if s.Mode == schedule.ModeDaily {
			e.reply(ctx, chat, e.dailyHint())
		} else {
			e.reply(ctx, chat, e.onceHint())
		}
	case ActionReplace:
		s, err := e.store.Owned(admin, arg)
		if err != nil {
			e.gone(ctx, admin, chat)
			return
		}
		e.sessions.Set(admin, conversation.WaitingForReplaceMessage{ScheduleID: s.ID})
		e.reply(ctx, chat, "Send the new message for this schedule. /cancel to keep the current one.")
	default:
		e.log.Debug("unknown action", logx.String("action", action))
	}
}

// show edits the callback's message in place, sending a new one if that fails.
func (e *Engine) show(ctx context.Context, chat kit.ChatTarget, ref kit.MessageRef, m tgui.Message) {
	if ref.MessageID != 0 {
		if err := m.Edit(ctx, e.msg, ref); err == nil {
			return
		}
	}
	if _, err := m.Send(ctx, e.msg, chat); err != nil {
		e.log.Warn("send view failed", logx.Err(err))
	}
}

func (e *Engine) gone(ctx context.Context, admin int64, chat kit.ChatTarget) {
	e.sessions.Clear(admin)
	e.reply(ctx, chat, textGone)
}

func (e *Engine) abandon(ctx context.Context, admin int64, chat kit.ChatTarget, err error) {
	e.log.Error("create schedule failed", logx.Int64("admin", admin), logx.Err(err))
	e.sessions.Clear(admin)
	e.reply(ctx, chat, "❌ Could not create the schedule: "+err.Error())
}

func inputError(err error) string {
	switch {
	case errors.Is(err, civiltime.ErrInvalidTime):
		return "That date or time does not exist in this timezone."
	case errors.Is(err, civiltime.ErrBadFormat):
		return "Wrong format."
	default:
		return err.Error()
	}
}
