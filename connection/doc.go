// Package connection owns the single logical broker connection of a
// hostwatch participant.
//
// A Manager dials a fresh bus.Client for every attempt, runs the connection
// state machine and drives a single-threaded event loop. Every handler
// callback, inbound message, timer tick and continuation of off-loop work
// executes on that loop, so state reached only from handlers needs no locks.
//
// # State Machine
//
//	Connecting ──ok──▶ Connected ──lost──▶ Disconnected
//	     ▲                                      │
//	     └────────── reconnect timer ◀──────────┘
//
// The reconnect timer is armed only when a Connected session drops, so at
// most one is ever live. A tick that finds an attempt in flight is skipped.
//
// # Failures
//
// Run returns a fatal *errors.Error when:
//   - the very first connection attempt fails (ErrCodeConnect)
//   - the broker address cannot be resolved at any time (ErrCodeResolution)
//
// Connect failures after the first successful session are logged and
// retried by the reconnect timer.
//
// # Loop Utilities
//
//	m.Every(10*time.Second, sweep)      // repeating, cancellable loop timer
//	m.Go(collect, publish)              // blocking work off-loop, continuation on-loop
//	m.Post(fn)                          // enqueue from any goroutine
package connection
