package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"castbot/internal/civiltime"
	"castbot/internal/config"
	"castbot/internal/directory"
	"castbot/internal/engine"
	"castbot/internal/eventbus"
	"castbot/internal/notifier"
	"castbot/internal/observability/ops"
	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/scheduler"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/internal/transport/telegram/router"
	logx "castbot/pkg/logx"
	"castbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	// root carries no comp field; every component derives from it.
	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store // nil when audit is disabled
	dir   directory.Directory

	adapter kit.Adapter
	engine  *engine.Engine
	sched   *scheduler.Service
	notif   *notifier.Service
	ops     *ops.Service
	cmdm    *router.CommandManager

	updates chan kit.Update
	started time.Time
}

// New loads the config at cfgPath and builds every component. Nothing
// talks to Telegram except the token check until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("info").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, ad)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (a *App, err error) {
	// Enable the Telegram sink only after its target is set so Apply does
	// not warn about a missing chat.
	logCfg := mapLogConfig(cfg)
	boot := logCfg
	boot.Telegram.Enabled = false
	logs, root := logx.New(boot, ad)
	if chat := groupLogChat(cfg); chat != 0 {
		logs.SetTelegramTarget(chat, cfg.Logging.Telegram.ThreadID)
	}
	logs.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = logs.Close()
	}()

	bc, err := cfg.Broadcast.Resolve()
	if err != nil {
		return nil, err
	}
	zone, err := civiltime.Load(bc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("broadcast.timezone: %w", err)
	}

	dcfg, err := mapDirectoryConfig(cfg)
	if err != nil {
		return nil, err
	}
	dir, err := directory.Open(dcfg, root.With(logx.String("comp", "directory")))
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	closers = append(closers, dir.Close)
	log.Info("directory ready", logx.String("driver", dcfg.Driver))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		closers = append(closers, st.Close)
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, root.With(logx.String("comp", "notifier")), bus)

	eng, err := engine.New(engine.Config{
		Zone:    zone,
		Admins:  cfg.Telegram.AdminUserIDs,
		Epsilon: bc.DailyEpsilon,
	}, engine.Deps{
		Messenger: ad,
		Directory: dir,
		Notifier:  notif,
		Bus:       bus,
		Log:       root,
	})
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		Interval: bc.TickInterval,
		Location: zone.Location(),
		Timeout:  bc.TickTimeout,
	}, eng, root.With(logx.String("comp", "scheduler")))

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}

	cmdm := router.NewCommandManager(root.With(logx.String("comp", "commands")), ad, eng, cfg.Telegram.Workers)

	a = &App{
		cfgm:    cfgm,
		root:    root,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
		dir:     dir,
		adapter: ad,
		engine:  eng,
		sched:   sched,
		notif:   notif,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(ocfg, func(ctx context.Context) any { return a.snapshot(ctx) }, root.With(logx.String("comp", "ops")))
	a.registerCommands()
	log.Info("engine ready",
		logx.String("timezone", zone.Name()),
		logx.Duration("tick_interval", bc.TickInterval),
		logx.Int("admins", len(cfg.Telegram.AdminUserIDs)),
	)
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	run := a.sup.Context()

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.notif.Start(run)

	if a.store != nil {
		a.sup.Go("audit", storage.NewAuditor(a.store, a.bus, a.root).Run)
	}
	a.sup.Go0("eventbus.log", a.logEvents)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	if err := a.sched.Start(run); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.ops.Start(run)
	a.sup.GoRestart("systemd.watchdog", systemd.Watchdog,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithStopOnCleanExit(true),
	)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.String("tick", a.sched.Spec()))
	return nil
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// Background loops start unwinding right away; the steps below only
	// bound how long each component may take.
	a.sup.Cancel()

	var errs []error
	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "ops", 2*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	errs = append(errs, a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop))
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	errs = append(errs, a.step(ctx, "directory", time.Second, func(context.Context) error { return a.dir.Close() }))
	errs = append(errs, a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	}))

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// step runs fn with an upper bound so one component cannot stall the whole
// stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
		return nil
	}
}
