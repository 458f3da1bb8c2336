// Package scheduler runs the countdown for every timer independently of any
// caller and exposes the operation surface the agent's tool layer consumes.
//
// # Execution model
//
// The agent loop is request/response: it issues one Run call at a time and
// blocks only for that call. Each timer gets its own countdown goroutine that
// keeps ticking after the call returns, so a caller can simulate a long wait
// through repeated short calls, or detach entirely and be notified later.
//
// Two durations matter per timer. The total duration is the system-level
// truth that survives the caller disappearing. The yield timeout is a
// caller-local promise to stop blocking after at most that long; Run blocks
// for min(yieldTimeout, remaining) and reports whether the timer is still
// outstanding.
//
// # Stop vs cancel
//
// Stop means "the awaited condition is satisfied or irrelevant; destroy the
// timer now" — no notification ever. Cancel means "I am walking away from
// waiting but still want to know when the duration elapses": the timer keeps
// ticking unattended and its completion is enqueued on the notification
// queue, drained at the agent's next turn boundary.
//
// # Concurrency
//
// All state lives in the timer registry behind one lock. Countdown
// completion and caller mutations race on that lock; the loser observes the
// updated status and no-ops. Blocked Run calls are woken immediately by
// stop/cancel/pause rather than waiting out their yield timeout. No lock is
// held while waiting.
package scheduler
