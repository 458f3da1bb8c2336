// Package notify carries "timer completed while detached" events from the
// scheduler into the next agent turn.
//
// The scheduler never calls back into agent code; it only appends here, and
// the agent loop drains the queue synchronously at its turn boundary. The
// queue carries successful completions only, never errors.
package notify

import (
	"sync"
	"time"

	logx "tickd/pkg/logx"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 256

// Event records one background-timer completion.
type Event struct {
	TimerID     string
	Reason      string
	Mission     string
	Total       time.Duration
	Elapsed     time.Duration
	CompletedAt time.Time
}

// Queue is an ordered, at-least-once delivery queue of completion events.
// Producer: scheduler completion handling. Consumer: the agent loop's
// turn-boundary drain.
type Queue struct {
	mu      sync.Mutex
	events  []Event
	cap     int
	dropped uint64
	log     logx.Logger
}

func NewQueue(capacity int, log logx.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{cap: capacity, log: log}
}

// Enqueue appends one event, dropping the oldest entry when the queue is at
// capacity. Exactly one event is enqueued per detached natural completion;
// attached completions are observed synchronously and never land here.
func (q *Queue) Enqueue(e Event) {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) >= q.cap {
		q.events = q.events[1:]
		q.dropped++
		q.log.Warn("notification queue full; dropped oldest event",
			logx.Int("cap", q.cap), logx.Int64("dropped", int64(q.dropped)))
	}
	q.events = append(q.events, e)
}

// HasPending reports whether a drain would return events.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) > 0
}

// DrainAll returns all pending events in enqueue order and clears the queue.
// Called once per agent turn boundary.
func (q *Queue) DrainAll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Dropped reports how many events were discarded due to capacity pressure.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len reports the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
