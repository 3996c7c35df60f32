package config

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	logx "castbot/pkg/logx"
)

var (
	levelRule = validation.By(func(v any) error {
		s, _ := v.(string)
		if s != "" && !logx.ValidLevel(s) {
			return errors.New("unknown log level")
		}
		return nil
	})
	durationRule = validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return errors.New("must be a Go duration such as 15s")
		}
		if d < 0 {
			return errors.New("must not be negative")
		}
		return nil
	})
	timezoneRule = validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := time.LoadLocation(strings.TrimSpace(s)); err != nil {
			return errors.New("unknown IANA timezone")
		}
		return nil
	})
	chatIDRule = validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
			return errors.New("must be a numeric chat id")
		}
		return nil
	})
	positiveIDs = validation.By(func(v any) error {
		ids, _ := v.([]int64)
		for _, id := range ids {
			if id <= 0 {
				return errors.New("user ids must be positive")
			}
		}
		return nil
	})
)

// Validate checks cfg after env overrides are applied.
func Validate(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	return validation.ValidateStructWithContext(ctx, cfg,
		validation.Field(&cfg.Telegram),
		validation.Field(&cfg.Logging),
		validation.Field(&cfg.Broadcast),
		validation.Field(&cfg.Directory),
		validation.Field(&cfg.Notifier),
		validation.Field(&cfg.Storage),
		validation.Field(&cfg.Ops),
	)
}

func (t TelegramConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Token, validation.Required.Error("is required (or set "+EnvToken+")")),
		validation.Field(&t.AdminUserIDs, validation.Required, positiveIDs),
		validation.Field(&t.GroupLog, chatIDRule),
		validation.Field(&t.PollTimeout, durationRule),
		validation.Field(&t.Workers, validation.Min(0)),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, levelRule),
		validation.Field(&l.Telegram),
	)
}

func (l LoggingTelegram) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.MinLevel, levelRule),
		validation.Field(&l.RatePerSec, validation.Min(0)),
	)
}

func (b BroadcastConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Timezone, timezoneRule),
		validation.Field(&b.TickInterval, durationRule),
		validation.Field(&b.DailyEpsilon, durationRule),
		validation.Field(&b.TickTimeout, durationRule),
	)
}

func (d DirectoryConfig) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(d.Driver))
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.In("", "memory", "file", "sqlite", "sqlite3", "redis").Error("must be memory, file, sqlite or redis")),
		validation.Field(&d.Path, validation.When(driver == "file" || driver == "sqlite" || driver == "sqlite3", validation.Required)),
		validation.Field(&d.BusyTimeout, durationRule),
		validation.Field(&d.Redis, validation.When(driver == "redis", validation.By(func(any) error {
			return validation.Validate(d.Redis.Addr, validation.Required.Error("redis.addr is required"))
		}))),
	)
}

func (n NotifierConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Workers, validation.Min(0)),
		validation.Field(&n.QueueSize, validation.Min(0)),
		validation.Field(&n.RatePerSec, validation.Min(0)),
		validation.Field(&n.RetryMax, validation.Min(0)),
		validation.Field(&n.RetryBase, durationRule),
		validation.Field(&n.RetryMaxDelay, durationRule),
	)
}

func (s StorageConfig) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.In("", "none", "file", "sqlite", "sqlite3").Error("must be none, file or sqlite")),
		validation.Field(&s.Path, validation.When(driver == "file" || driver == "sqlite" || driver == "sqlite3", validation.Required)),
		validation.Field(&s.BusyTimeout, durationRule),
	)
}

func (o OpsConfig) Validate() error {
	addr := strings.TrimSpace(o.Addr)
	return validation.ValidateStruct(&o,
		validation.Field(&o.Addr, validation.When(o.Enabled && addr != "", validation.By(func(any) error {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return errors.New("must be host:port")
			}
			if strings.TrimSpace(o.Token) == "" && !o.AllowInsecure && !loopbackAddr(addr) {
				return errors.New("non-loopback addr requires token or allow_insecure")
			}
			return nil
		}))),
		validation.Field(&o.ReadTimeout, durationRule),
		validation.Field(&o.IdleTimeout, durationRule),
		validation.Field(&o.MutexProfileFraction, validation.Min(0)),
		validation.Field(&o.BlockProfileRate, validation.Min(0)),
	)
}

func loopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(h), "localhost") {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(h))
	return ip != nil && ip.IsLoopback()
}
