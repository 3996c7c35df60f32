// Package directory is the recipient directory: the set of chats a broadcast
// fans out to. Recipients register themselves with /start.
//
// Drivers:
//   - "memory": process-local, lost on restart
//   - "file":   JSON file rewritten atomically on change
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis":  one key per recipient, listed with a SCAN over the key prefix
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "castbot/pkg/logx"
)

// ErrUnavailable wraps every failure to read or write the backing store.
var ErrUnavailable = errors.New("directory unavailable")

type Directory interface {
	// List returns every registered recipient id. The result may be empty.
	List(ctx context.Context) ([]int64, error)
	// Add registers id; added is false if it was already present.
	Add(ctx context.Context, id int64) (added bool, err error)
	Remove(ctx context.Context, id int64) error
	Close() error
}

type Config struct {
	Driver string
	Path   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	BusyTimeout time.Duration // sqlite only
}

// Open initializes the configured driver. An empty driver means "memory".
func Open(cfg Config, log logx.Logger) (Directory, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown directory driver: " + driver)
	}
}
