package engine

import (
	"sync"

	"github.com/roach88/tracemon/internal/ir"
)

// eventQueue buffers events between producers (websocket connections,
// trace readers) and the single Run loop. It is unbounded, so a producer
// never waits for the verifier.
//
// The consumer takes whole batches: Take swaps the pending buffer with the
// buffer of the previous batch, so steady-state ingestion allocates
// nothing. A batch is only valid until the next Take.
type eventQueue struct {
	mu      sync.Mutex
	pending []ir.Event
	spare   []ir.Event
	peak    int
	closed  bool
	ready   chan struct{} // capacity 1; coalesces wakeups
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		pending: make([]ir.Event, 0, 64),
		spare:   make([]ir.Event, 0, 64),
		ready:   make(chan struct{}, 1),
	}
}

// Enqueue appends e. It returns false once the queue is closed.
func (q *eventQueue) Enqueue(e ir.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, e)
	q.peak = max(q.peak, len(q.pending))

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Take removes and returns every pending event in FIFO order, or nil when
// none is pending.
func (q *eventQueue) Take() []ir.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	// The spare buffer held the previous batch; drop its args before reuse.
	clear(q.spare)
	batch := q.pending
	q.pending = q.spare[:0]
	q.spare = batch
	return batch
}

// Wait returns a channel that receives when events may be pending. It is
// closed by Close, so a waiter never hangs on a stopped queue.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.ready
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Peak returns the largest backlog seen.
func (q *eventQueue) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}

// Close rejects further events. Pending events stay available to Take.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
