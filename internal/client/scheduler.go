package client

import "time"

// TimerHandle cancels a scheduled callback.
type TimerHandle interface {
	// Stop cancels the callback if it has not fired yet and reports
	// whether it did.
	Stop() bool
}

// Scheduler abstracts deferred execution so reconnect backoff and
// keepalive can be driven deterministically in tests instead of against
// the wall clock.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

// realScheduler schedules on the runtime timer wheel.
type realScheduler struct{}

// NewScheduler returns the wall-clock scheduler used outside tests.
func NewScheduler() Scheduler { return realScheduler{} }

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func (realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return realTimer{t: time.AfterFunc(d, fn)}
}
