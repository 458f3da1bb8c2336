package scheduler

import (
	"sync"
	"time"

	"tickd/internal/timer"
)

// Config controls the scheduler service.
type Config struct {
	// MaxDuration bounds a single timer's total duration (default 24h).
	MaxDuration time.Duration
	// DefaultYield is used when Run is called with a zero yield timeout
	// (default 60s).
	DefaultYield time.Duration
	// TombstoneTTL controls how long terminal ids stay recognizable
	// (default 10m).
	TombstoneTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = timer.DefaultMaxDuration
	}
	if c.DefaultYield <= 0 {
		c.DefaultYield = 60 * time.Second
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = timer.DefaultTombstoneTTL
	}
	return c
}

// RunRequest is one wait call from the agent.
type RunRequest struct {
	// ID continues an existing timer when set; empty creates a new one.
	ID string
	// Total is the requested countdown length. On a continue call it
	// becomes the new remaining time.
	Total time.Duration
	// Yield caps how long this call may block. Zero means the configured
	// default; it is always clamped to the remaining time.
	Yield time.Duration
	// Reason and Mission are mutually exclusive purpose tags.
	Reason  string
	Mission string
}

// RunResult reports the outcome of one wait call.
type RunResult struct {
	ID string
	// TimedOut is true when the yield timeout (or an interrupting
	// mutation) returned control while the timer is still outstanding.
	TimedOut bool
	State    timer.Snapshot
}

// TimerEvent is the bus payload for timer lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type TimerEvent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Purpose     string `json:"purpose,omitempty"`
	RemainingMS int64  `json:"remaining_ms"`
	Note        string `json:"note,omitempty"`
}

// Snapshot is a copy of the scheduler's observable state.
type Snapshot struct {
	Timers        []timer.Snapshot
	Pending       int    // undelivered notifications
	DroppedEvents uint64 // notifications lost to capacity pressure
}

// runtime is the per-timer concurrency plumbing: the countdown goroutine's
// wake-up channels and the waiter broadcast. State fields live in the
// registry, never here.
type runtime struct {
	id string

	// kick pokes the countdown goroutine to re-read state (pause, resume,
	// continue, stop). Buffered so pokes never block.
	kick chan struct{}
	// done is closed when the countdown goroutine exits.
	done chan struct{}

	mu sync.Mutex
	// wake is closed-and-replaced to broadcast to blocked Run calls.
	wake chan struct{}
	// final holds the terminal snapshot for waiters that lose the race
	// with registry tombstoning.
	final   timer.Snapshot
	hasFinl bool
}

func newRuntime(id string) *runtime {
	return &runtime{
		id:   id,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
		wake: make(chan struct{}),
	}
}

func (rt *runtime) poke() {
	select {
	case rt.kick <- struct{}{}:
	default:
	}
}

// waitCh returns the current broadcast channel. Waiters must grab it before
// blocking so an interleaved broadcast is not missed.
func (rt *runtime) waitCh() <-chan struct{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.wake
}

// broadcast wakes every blocked Run call.
func (rt *runtime) broadcast() {
	rt.mu.Lock()
	close(rt.wake)
	rt.wake = make(chan struct{})
	rt.mu.Unlock()
}

func (rt *runtime) setFinal(snap timer.Snapshot) {
	rt.mu.Lock()
	if !rt.hasFinl {
		rt.final = snap
		rt.hasFinl = true
	}
	rt.mu.Unlock()
}

func (rt *runtime) finalSnap() (timer.Snapshot, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.final, rt.hasFinl
}
