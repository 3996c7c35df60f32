package router

import "github.com/google/uuid"

// newReqID is a short correlation id for request log lines.
func newReqID() string {
	return uuid.NewString()[:8]
}
