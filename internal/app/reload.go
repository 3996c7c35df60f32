package app

import (
	"context"
	"strings"
	"time"

	"castbot/internal/config"
	"castbot/internal/eventbus"
	"castbot/internal/scheduler"
	logx "castbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// only the newest of a burst matters
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the live-reloadable parts of next into the running
// components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Debug("config change summary", fields...)

	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.engine.SetAdmins(next.Telegram.AdminUserIDs)

	if ch.Has("broadcast") {
		if bc, err := next.Broadcast.Resolve(); err != nil {
			a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
		} else if err := a.sched.Apply(scheduler.Config{
			Interval: bc.TickInterval,
			Location: a.engine.Zone().Location(),
			Timeout:  bc.TickTimeout,
		}); err != nil {
			a.log.Warn("tick interval not applied", logx.Err(err))
		}
	}

	if ch.Has("notifier") {
		a.applyNotifier(ctx, next)
	}

	if ch.Has("ops") {
		if ocfg, err := mapOpsConfig(next); err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			a.ops.Reconfigure(ctx, ocfg)
		}
	}

	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.Restart, ",")))
	}

	a.bus.Publish(eventbus.Event{
		Type: eventbus.ConfigReloaded,
		Time: time.Now(),
		Data: ch.Sections,
	})
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyNotifier(ctx context.Context, next *config.Config) {
	ncfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	wasEnabled := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case wasEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !wasEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}
}
