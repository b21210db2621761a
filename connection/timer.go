package connection

import (
	"time"

	"github.com/vinayprograms/hostwatch/clock"
)

// Timer is a repeating timer whose ticks run on the event loop.
// Its methods must be called from the loop.
type Timer struct {
	m        *Manager
	interval time.Duration
	fn       func()
	pending  *clock.Timer
	stopped  bool
}

// Every schedules fn to run on the loop every interval until the returned
// Timer is stopped or the Manager shuts down. Must be called from the loop.
func (m *Manager) Every(interval time.Duration, fn func()) *Timer {
	t := &Timer{m: m, interval: interval, fn: fn}
	m.timers[t] = struct{}{}
	t.arm()
	return t
}

func (t *Timer) arm() {
	t.pending = t.m.clock.AfterFunc(t.interval, func() {
		t.m.queue.push(t.fire)
	})
}

// fire re-arms before running fn so fn may stop its own timer.
func (t *Timer) fire() {
	if t.stopped {
		return
	}
	t.arm()
	t.fn()
}

// Stop cancels the timer. Stopping a nil or stopped Timer is a no-op.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
	}
	delete(t.m.timers, t)
}

// Active reports whether the timer has not been stopped.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped
}
