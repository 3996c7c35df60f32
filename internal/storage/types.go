package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry is one journal line. Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	ActorID    int64     `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	OK         int       `json:"ok,omitempty"`
	Fail       int       `json:"fail,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store is the persistence API used by the app.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// ListAudit returns up to limit entries, newest first. actorID 0 means all actors.
	ListAudit(ctx context.Context, actorID int64, limit int) ([]AuditEntry, error)
	Close() error
}
