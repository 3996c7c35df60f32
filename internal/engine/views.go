package engine

import (
	"fmt"
	"strconv"
	"time"

	"castbot/internal/schedule"
	"castbot/pkg/tgui"
)

func data(action, arg string) string { return tgui.Data(CallbackPlugin, action, arg) }

func (e *Engine) deliveryView() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("🚀 Send now", data(ActionNow, "")), tgui.Btn("🕐 Once", data(ActionOnce, ""))).
		Row(tgui.Btn("🔁 Daily", data(ActionDaily, "")), tgui.Btn("✖ Cancel", data(ActionAbort, "")))
	return tgui.New().
		Title("📨", "Preview above").
		Line("How should it be delivered?").
		Inline(kb).
		Build()
}

func (e *Engine) listView(admin int64) tgui.Message {
	items := e.store.ListActive(admin)
	b := tgui.New().Title("🗓", "Active schedules ("+strconv.Itoa(len(items))+")")
	if len(items) == 0 {
		return b.Line("Nothing scheduled. Start with /broadcast.").Build()
	}
	kb := tgui.NewInline()
	for i, s := range items {
		n := strconv.Itoa(i + 1)
		b.Line(fmt.Sprintf("%s. %s · %s · next %s", n, s.Payload.Summary(), modeLabel(s), e.zone.Format(s.NextRunAt)))
		kb.Row(
			tgui.Btn("📄 Open "+n, data(ActionOpen, s.ID)),
			tgui.Btn("✖ Cancel "+n, data(ActionStop, s.ID)),
		)
	}
	return b.Inline(kb).Build()
}

func (e *Engine) detailView(s schedule.Schedule) tgui.Message {
	b := tgui.New().
		Title("📄", "Schedule").
		KV("Content", s.Payload.Summary()).
		KV("Mode", modeLabel(s)).
		KV("Next run", e.zone.Format(s.NextRunAt)).
		KV("Created", e.zone.Format(s.CreatedAt))
	if s.Runs > 0 {
		b.KV("Last run", fmt.Sprintf("%s (%d/%d)", e.zone.Format(s.LastRunAt), s.LastSent, s.LastTotal))
	}
	if s.LastError != "" {
		b.KV("Last error", s.LastError)
	}
	b.RawLine(tgui.Code(s.ID))
	kb := tgui.NewInline().
		Row(tgui.Btn("🕐 Edit time", data(ActionEdit, s.ID)), tgui.Btn("✏️ Replace message", data(ActionReplace, s.ID))).
		Row(tgui.Btn("✖ Cancel", data(ActionStop, s.ID)), tgui.Btn("⬅ Back", data(ActionBack, "")))
	return b.Inline(kb).Build()
}

func modeLabel(s schedule.Schedule) string {
	if s.Mode == schedule.ModeDaily && s.Daily != nil {
		return "daily at " + s.Daily.String()
	}
	return "once"
}

func (e *Engine) onceHint() string {
	return "Send the date and time as YYYY-MM-DD HH:MM (" + e.zone.Name() + "), e.g. " +
		e.now().In(e.zone.Location()).Add(24*time.Hour).Format("2006-01-02") + " 09:00."
}

func (e *Engine) dailyHint() string {
	return "Send the time of day as HH:MM (" + e.zone.Name() + "), e.g. 09:00."
}

const (
	textComposePrompt = "Send the message to broadcast: text, photo, video, video note, document or audio. /cancel to abort."
	textUnsupported   = "⚠️ That kind of message cannot be broadcast. Send text, photo, video, video note, document or audio."
	textPreviewFailed = "❌ Could not preview that message, the draft was discarded. Start again with /broadcast."
	textUseButtons    = "Pick a delivery option with the buttons above."
	textDraftExpired  = "This draft is no longer open. Start again with /broadcast."
	textGone          = "⚠️ That schedule is gone."
	textDenied        = "⛔ Only administrators can broadcast."
)
