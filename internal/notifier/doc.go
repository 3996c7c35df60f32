// Package notifier delivers short operator messages (run outcomes, failure
// reasons) to admins off the caller's goroutine.
//
// A Notify call only enqueues. Workers drain the queue at a bounded rate
// and retry transient send errors with jittered exponential backoff. A full
// queue rejects with ErrQueueFull instead of blocking the scheduler.
package notifier
