package config

import (
	"slices"
	"sort"
	"strings"

	logx "castbot/pkg/logx"
)

// Change describes what a reload touched.
type Change struct {
	Sections []string
	// Restart lists sections whose new values only take effect after a
	// restart.
	Restart []string
	Fields  []logx.Field
}

func (c Change) Has(section string) bool { return slices.Contains(c.Sections, section) }

// SummarizeConfigChange compares two configs. The returned fields are safe
// to log: secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)
	pollChanged := strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) || ot.Workers != nt.Workers
	if tokenChanged || pollChanged ||
		!slices.Equal(ot.AdminUserIDs, nt.AdminUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) {
		mark("telegram", tokenChanged || pollChanged,
			logx.Int("telegram.admin_count", len(nt.AdminUserIDs)),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		nl := newCfg.Logging
		mark("logging", false,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	ob, _ := oldCfg.Broadcast.Resolve()
	nb, _ := newCfg.Broadcast.Resolve()
	if ob != nb {
		// the tick interval is applied live; zone and epsilon are baked
		// into the engine at startup
		restart := ob.Timezone != nb.Timezone || ob.DailyEpsilon != nb.DailyEpsilon ||
			ob.TickTimeout != nb.TickTimeout
		mark("broadcast", restart,
			logx.String("broadcast.timezone", nb.Timezone),
			logx.Duration("broadcast.tick_interval", nb.TickInterval),
			logx.Duration("broadcast.daily_epsilon", nb.DailyEpsilon),
		)
	}

	od, nd := oldCfg.Directory, newCfg.Directory
	if od != nd {
		mark("directory", true,
			logx.String("directory.driver", strings.TrimSpace(nd.Driver)),
			logx.Bool("directory.path_set", strings.TrimSpace(nd.Path) != ""),
			logx.Bool("directory.redis_password_set", nd.Redis.Password != ""),
		)
	}

	on, nn := oldCfg.NotifierSection(), newCfg.NotifierSection()
	if on != nn {
		mark("notifier", false,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.queue_size", nn.QueueSize),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.Int("notifier.retry_max", nn.RetryMax),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		mark("storage", true,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newS.BusyTimeout)),
		)
	}

	var oldO, newO OpsConfig
	if oldCfg.Ops != nil {
		oldO = *oldCfg.Ops
	}
	if newCfg.Ops != nil {
		newO = *newCfg.Ops
	}
	if oldO != newO {
		mark("ops", false,
			logx.Bool("ops.enabled", newO.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newO.Addr)),
			logx.Bool("ops.pprof", newO.Pprof),
			logx.Bool("ops.token_set", newO.Token != ""),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.Restart)
	return ch
}
