package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimezone     = "Asia/Jakarta"
	DefaultTickInterval = 15 * time.Second
	DefaultDailyEpsilon = time.Second
	DefaultPollTimeout  = 10 * time.Second
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// BroadcastSettings is BroadcastConfig with defaults filled in.
type BroadcastSettings struct {
	Timezone     string
	TickInterval time.Duration
	DailyEpsilon time.Duration
	TickTimeout  time.Duration
}

func (b BroadcastConfig) Resolve() (BroadcastSettings, error) {
	out := BroadcastSettings{Timezone: strings.TrimSpace(b.Timezone)}
	if out.Timezone == "" {
		out.Timezone = DefaultTimezone
	}
	var err error
	if out.TickInterval, err = ParseDurationOrDefault("broadcast.tick_interval", b.TickInterval, DefaultTickInterval); err != nil {
		return out, err
	}
	if out.DailyEpsilon, err = ParseDurationOrDefault("broadcast.daily_epsilon", b.DailyEpsilon, DefaultDailyEpsilon); err != nil {
		return out, err
	}
	if out.TickTimeout, err = ParseDurationField("broadcast.tick_timeout", b.TickTimeout); err != nil {
		return out, err
	}
	return out, nil
}

// NotifierSection returns the notifier section, or the runtime defaults
// when it is omitted.
func (c *Config) NotifierSection() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return defaultNotifier
	}
	return *c.Notifier
}

var defaultNotifier = NotifierConfig{
	Enabled:       true,
	Workers:       2,
	QueueSize:     512,
	RatePerSec:    3,
	RetryMax:      3,
	RetryBase:     "500ms",
	RetryMaxDelay: "10s",
}
