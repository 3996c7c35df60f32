package eventbus

import "time"

// Event types published by the broadcast engine.
const (
	ScheduleCreated     = "schedule.created"
	ScheduleCancelled   = "schedule.cancelled"
	ScheduleRescheduled = "schedule.rescheduled"
	ScheduleReplaced    = "schedule.replaced"
	ScheduleRan         = "schedule.ran"
	ScheduleFailed      = "schedule.failed"
	BroadcastSent       = "broadcast.sent"
	RecipientJoined     = "recipient.joined"
	RecipientLeft       = "recipient.left"
	ConfigReloaded      = "config.reloaded"
)

// ScheduleInfo is the Data of every schedule.* event.
type ScheduleInfo struct {
	ID      string
	Owner   int64
	Mode    string
	Summary string
	NextRun time.Time
	Sent    int
	Total   int
	Err     string
}

// BroadcastInfo is the Data of broadcast.sent. ScheduleID is empty for
// immediate broadcasts.
type BroadcastInfo struct {
	ScheduleID string
	Admin      int64
	Summary    string
	Sent       int
	Total      int
}

// RecipientInfo is the Data of recipient.* events.
type RecipientInfo struct {
	ChatID int64
	Name   string
}
