package worker

import (
	"sync"

	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/record"
)

// Event wraps one deliverable worker event for the queue.
// Exactly the fields for the event's kind are set.
type Event struct {
	Kind record.EventKind

	// Payload is the opaque push payload (push only).
	Payload []byte

	// Click describes a notification tap (notificationclick only).
	Click *ClickInfo

	// Tag selects the sync routine (sync and periodicsync only).
	Tag string

	// Message carries a page → worker command (message only).
	Message *msg.Message
	// Port, when non-nil, receives exactly one reply for the message.
	Port msg.Port
}

// ClickInfo describes which notification was tapped and which action
// button, if any. An empty Action is the default tap.
type ClickInfo struct {
	Tag    string
	Action string
}

// eventQueue is a thread-safe FIFO queue for worker events.
//
// The queue is unbounded so a burst of pushes or messages never blocks
// the platform delivering them.
//
// Thread-safety is provided for external enqueuing (control API handlers,
// the periodic scheduler) while the worker's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Signal availability (non-blocking - buffer of 1 coalesces signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the Event's pointers (Click, Message) can be
	// collected before the underlying array is reallocated.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
