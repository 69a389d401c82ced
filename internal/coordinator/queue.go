package coordinator

import (
	"sync"
	"time"

	"github.com/roach88/relq/internal/ir"
)

// eventKind distinguishes queued events.
type eventKind int

const (
	// eventStarted reports that a flight moved its descriptor to loading.
	eventStarted eventKind = iota + 1
	// eventSettled carries a finished fetch to the writer.
	eventSettled
	// eventBarrier is acknowledged once every earlier event is applied.
	eventBarrier
	// eventRecords reports a write to the record store.
	eventRecords
)

// event is one unit of work for the Run loop.
type event struct {
	kind    eventKind
	flight  *flight
	result  ir.FetchResult
	err     error
	elapsed time.Duration
	ack     chan struct{}

	resource string
	ids      []ir.ID
}

// eventQueue is a thread-safe FIFO queue feeding the Run loop.
//
// The queue is unbounded so flight goroutines never block on a slow
// writer. It uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the flight and its result can be collected.
	q.events[0] = event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued and returns the
// events still queued.
func (q *eventQueue) Close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)
	rest := q.events
	q.events = nil
	return rest
}
