package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"castbot/internal/config"
	"castbot/internal/directory"
	"castbot/internal/notifier"
	"castbot/internal/observability/ops"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat is 0 when no ops chat is configured.
func groupLogChat(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapDirectoryConfig(cfg *config.Config) (directory.Config, error) {
	dc := cfg.Directory
	busy, err := config.ParseDurationOrDefault("directory.busy_timeout", dc.BusyTimeout, time.Second)
	if err != nil {
		return directory.Config{}, err
	}
	return directory.Config{
		Driver:        strings.ToLower(strings.TrimSpace(dc.Driver)),
		Path:          strings.TrimSpace(dc.Path),
		RedisAddr:     strings.TrimSpace(dc.Redis.Addr),
		RedisPassword: dc.Redis.Password,
		RedisDB:       dc.Redis.DB,
		KeyPrefix:     strings.TrimSpace(dc.Redis.KeyPrefix),
		BusyTimeout:   busy,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.NotifierSection()
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	out := notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 512
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 3
	}
	return out, nil
}

// mapStorageConfig reports enabled=false when no audit store is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	if cfg.Ops == nil {
		return ops.Config{}, nil
	}
	oc := cfg.Ops
	readTO, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 5*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 2*time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	addr := strings.TrimSpace(oc.Addr)
	if addr == "" {
		addr = ops.DefaultAddr
	}
	return ops.Config{
		Enabled:              oc.Enabled,
		Addr:                 addr,
		Token:                strings.TrimSpace(oc.Token),
		AllowInsecure:        oc.AllowInsecure,
		Pprof:                oc.Pprof,
		ReadTimeout:          readTO,
		IdleTimeout:          idleTO,
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
	}, nil
}
