package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"castbot/internal/engine"
	"castbot/internal/eventbus"
	"castbot/internal/storage"
	"castbot/internal/transport/telegram/router"
	"castbot/pkg/tgui"
)

const (
	historyDefault = 10
	historyMax     = 50
)

var engineActions = []string{
	engine.ActionNow,
	engine.ActionOnce,
	engine.ActionDaily,
	engine.ActionAbort,
	engine.ActionList,
	engine.ActionOpen,
	engine.ActionStop,
	engine.ActionEdit,
	engine.ActionReplace,
	engine.ActionBack,
}

func (a *App) registerCommands() {
	cmds := []router.Command{
		{
			Name:        "start",
			Description: "receive broadcasts in this chat",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.engine.Join(ctx, req.Update.Message)
				return nil
			},
		},
		{
			Name:        "stop",
			Aliases:     []string{"unsubscribe"},
			Description: "stop receiving broadcasts",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.engine.Leave(ctx, req.Update.Message)
				return nil
			},
		},
		{
			// Open to everyone: the engine answers non-admins with its own
			// denial.
			Name:        "broadcast",
			Aliases:     []string{"bc"},
			Description: "compose a broadcast",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.engine.StartCompose(ctx, req.FromID, req.Chat)
				return nil
			},
		},
		{
			// The engine ignores non-admins here without a reply.
			Name:        "schedules",
			Description: "list your active schedules",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.engine.ListSchedules(ctx, req.FromID, req.Chat)
				return nil
			},
		},
		{
			Name:        "cancel",
			Description: "abandon the current draft or edit",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.engine.CancelSession(ctx, req.FromID, req.Chat)
				return nil
			},
		},
		{
			Name:        "history",
			Usage:       "/history [n]",
			Description: "recent broadcast activity",
			Access:      router.AccessAdmin,
			Handle:      a.cmdHistory,
		},
		{
			Name:        "status",
			Description: "scheduler and recipient stats",
			Access:      router.AccessAdmin,
			Timeout:     10 * time.Second,
			Handle:      a.cmdStatus,
		},
	}

	cbs := make([]router.CallbackRoute, 0, len(engineActions))
	for _, action := range engineActions {
		cbs = append(cbs, router.CallbackRoute{
			Plugin: engine.CallbackPlugin,
			Action: action,
			// the engine ignores non-admins silently
			Access: router.CallbackAccessEveryone,
			Handle: func(ctx context.Context, req *router.Request, payload string) error {
				a.engine.HandleAction(ctx, req.Update.Callback, action, payload)
				return nil
			},
		})
	}

	a.cmdm.SetRegistry(cmds, cbs)
	a.cmdm.SetFallback(func(ctx context.Context, req *router.Request) error {
		a.engine.HandleMessage(ctx, req.Update.Message)
		return nil
	})
}

func (a *App) cmdHistory(ctx context.Context, req *router.Request) error {
	if a.store == nil {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Audit storage is disabled.", nil)
		return err
	}
	limit := historyDefault
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			_, err := req.Adapter.SendText(ctx, req.Chat, "Usage: /history [n]", nil)
			return err
		}
		limit = min(n, historyMax)
	}
	entries, err := a.store.ListAudit(ctx, 0, limit)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Could not read history.", nil)
		return err
	}
	_, err = a.historyView(entries).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (a *App) historyView(entries []storage.AuditEntry) tgui.Message {
	b := tgui.New().Title("📜", "Recent activity")
	if len(entries) == 0 {
		return b.Line("Nothing recorded yet.").Build()
	}
	zone := a.engine.Zone()
	for _, e := range entries {
		line := zone.Format(e.At) + " · " + actionLabel(e.Action)
		if e.Summary != "" {
			line += " · " + e.Summary
		}
		switch e.Action {
		case eventbus.BroadcastSent, eventbus.ScheduleRan:
			line += fmt.Sprintf(" · %d/%d", e.OK, e.OK+e.Fail)
		}
		if e.Error != "" {
			line += " · " + e.Error
		}
		b.Line(line)
	}
	return b.Build()
}

func actionLabel(action string) string {
	switch action {
	case eventbus.BroadcastSent:
		return "sent"
	case eventbus.ScheduleCreated:
		return "scheduled"
	case eventbus.ScheduleCancelled:
		return "cancelled"
	case eventbus.ScheduleRescheduled:
		return "rescheduled"
	case eventbus.ScheduleReplaced:
		return "replaced"
	case eventbus.ScheduleRan:
		return "ran"
	case eventbus.ScheduleFailed:
		return "failed"
	case eventbus.RecipientJoined:
		return "joined"
	case eventbus.RecipientLeft:
		return "left"
	default:
		return action
	}
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	_, err := a.statusView(ctx).Send(ctx, req.Adapter, req.Chat)
	return err
}

// Snapshot is the state shown by /status and served at GET /status.
type Snapshot struct {
	Recipients int     `json:"recipients"` // -1 when the directory is unavailable
	Schedules  int     `json:"schedules"`
	InFlight   int     `json:"in_flight"`
	Timezone   string  `json:"timezone"`
	Tick       string  `json:"tick"`
	Passes     uint64  `json:"passes"`
	Ran        uint64  `json:"ran"`
	Notifier   bool    `json:"notifier"`
	Audit      bool    `json:"audit"`
	Uptime     float64 `json:"uptime_seconds"`
}

func (a *App) snapshot(ctx context.Context) Snapshot {
	passes, ran := a.sched.Stats()
	s := Snapshot{
		Recipients: -1,
		Schedules:  a.engine.Schedules().Len(),
		InFlight:   a.engine.InFlight(),
		Timezone:   a.engine.Zone().Name(),
		Tick:       a.sched.Spec(),
		Passes:     passes,
		Ran:        ran,
		Notifier:   a.notif.Enabled(),
		Audit:      a.store != nil,
	}
	if n, err := a.engine.Recipients(ctx); err == nil {
		s.Recipients = n
	}
	if !a.started.IsZero() {
		s.Uptime = time.Since(a.started).Truncate(time.Second).Seconds()
	}
	return s
}

func (a *App) statusView(ctx context.Context) tgui.Message {
	s := a.snapshot(ctx)
	recipients := "unavailable"
	if s.Recipients >= 0 {
		recipients = strconv.Itoa(s.Recipients)
	}
	b := tgui.New().
		Title("📊", "Status").
		KV("Recipients", recipients).
		KV("Schedules", strconv.Itoa(s.Schedules)).
		KV("Running now", strconv.Itoa(s.InFlight)).
		KV("Timezone", s.Timezone).
		KV("Tick", s.Tick).
		KV("Passes", fmt.Sprintf("%d (%d runs)", s.Passes, s.Ran)).
		KV("Notifier", onOff(s.Notifier)).
		KV("Audit", onOff(s.Audit))
	if !a.started.IsZero() {
		b.KV("Uptime", time.Since(a.started).Truncate(time.Second).String())
	}
	return b.Build()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
