package config

// Config is the on-disk configuration. JSON or YAML; unknown keys are
// rejected. Durations are Go duration strings ("500ms", "15s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Directory DirectoryConfig `json:"directory"`

	// Notifier defaults to enabled when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	// Storage holds the audit trail. Omitted means no audit.
	Storage *StorageConfig `json:"storage,omitempty"`
	// Ops is the operator HTTP endpoint. Omitted means off.
	Ops *OpsConfig `json:"ops,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via CASTBOT_TELEGRAM_TOKEN.
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// GroupLog is the chat id that receives log lines when logging.telegram
	// is enabled.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// Workers sizes the update dispatcher; 0 picks from CPU count.
	Workers int `json:"workers,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// BroadcastConfig controls schedule arithmetic and the tick trigger.
//
// Defaults: timezone "Asia/Jakarta", tick_interval "15s", daily_epsilon
// "1s", tick_timeout "0s" (no bound).
type BroadcastConfig struct {
	Timezone     string `json:"timezone"`
	TickInterval string `json:"tick_interval"`
	DailyEpsilon string `json:"daily_epsilon,omitempty"`
	TickTimeout  string `json:"tick_timeout,omitempty"`
}

// DirectoryConfig selects the recipient directory driver.
//
// Example:
//
//	"directory": { "driver": "sqlite", "path": "./castbot.db" }
type DirectoryConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// NotifierConfig controls the async admin notification pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig controls the audit store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./castbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// OpsConfig controls the operator HTTP endpoint (/healthz, /status and
// optionally /debug/pprof/). Binding beyond loopback needs a token or
// allow_insecure.
//
// Example:
//
//	"ops": { "enabled": true, "addr": "127.0.0.1:6060", "pprof": true }
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
