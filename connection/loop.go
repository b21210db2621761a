package connection

import "sync"

// eventQueue is an unbounded FIFO of loop events. Producers never block,
// so a client that delivers messages synchronously from inside a call made
// on the loop cannot deadlock it.
type eventQueue struct {
	mu     sync.Mutex
	events []func()
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

// push appends an event and wakes the loop.
func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	q.events = append(q.events, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes the oldest event.
func (q *eventQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	fn := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return fn, true
}
