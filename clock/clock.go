// Package clock provides an injectable time source so that timer-driven
// code (reconnect retries, sweeps, report intervals) can be tested without
// sleeping.
//
// Production code uses Real(). Tests use Fake() and move time forward with
// Advance; PendingCount reports how many timers are armed.
package clock

import "time"

// Clock abstracts the parts of the time package hostwatch uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable single-shot timer returned by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
