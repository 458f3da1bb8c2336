package timer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a timer.
type Status string

const (
	// StatusRunning means a caller is (or may be) attached and the countdown
	// is ticking.
	StatusRunning Status = "running"
	// StatusPaused means the countdown is frozen until PauseUntil (or a
	// manual resume).
	StatusPaused Status = "paused"
	// StatusBackground means the caller detached (cancel) but the countdown
	// keeps ticking; completion enqueues a notification.
	StatusBackground Status = "background"
	// StatusCompleted means the countdown reached zero.
	StatusCompleted Status = "completed"
	// StatusStopped means the timer was terminated before completion.
	StatusStopped Status = "stopped"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// NewID generates a unique timer identifier with "tmr-" prefix.
func NewID() string {
	return fmt.Sprintf("tmr-%s", uuid.NewString())
}

// State is the mutable record for one timer. All fields are guarded by the
// registry lock; callers outside the registry only ever see Snapshot copies.
type State struct {
	ID            string
	Total         time.Duration
	CreatedAt     time.Time
	LastCheckedAt time.Time

	// PausedFor accumulates completed pause intervals. While paused,
	// PausedAt marks the start of the current pause and PauseUntil the
	// automatic-resume deadline; both are zero otherwise.
	PausedFor  time.Duration
	PausedAt   time.Time
	PauseUntil time.Time

	Status Status

	// Reason and Mission are mutually exclusive caller-supplied purposes:
	// a condition being polled for vs. a task to perform on completion.
	Reason  string
	Mission string

	// TerminationReason is the free-text explanation supplied on the most
	// recent stop/cancel/pause/resume.
	TerminationReason string

	// Detached records whether the timer is currently cancel-detached.
	// It decides whether natural completion enqueues a notification, and
	// which mode a resume restores.
	Detached bool
}

// Elapsed returns wall-clock time consumed by the countdown, excluding all
// paused intervals (including the one in progress, if any).
func (st *State) Elapsed(now time.Time) time.Duration {
	e := now.Sub(st.CreatedAt) - st.PausedFor
	if st.Status == StatusPaused && !st.PausedAt.IsZero() {
		e -= now.Sub(st.PausedAt)
	}
	if e < 0 {
		e = 0
	}
	return e
}

// Remaining is never stored; it is recomputed from Total and Elapsed on
// every read.
func (st *State) Remaining(now time.Time) time.Duration {
	r := st.Total - st.Elapsed(now)
	if r < 0 {
		r = 0
	}
	return r
}

// Snapshot is an immutable copy of a timer's state with the time-derived
// fields evaluated at snapshot time.
type Snapshot struct {
	ID            string
	Status        Status
	Total         time.Duration
	Elapsed       time.Duration
	Remaining     time.Duration
	CreatedAt     time.Time
	LastCheckedAt time.Time
	PausedFor     time.Duration
	PauseUntil    time.Time

	Reason            string
	Mission           string
	TerminationReason string
	Detached          bool
}

// Purpose renders the reason-or-mission tag for logs and notifications.
// Empty when neither was supplied.
func (s Snapshot) Purpose() string {
	switch {
	case s.Reason != "":
		return "reason: " + s.Reason
	case s.Mission != "":
		return "mission: " + s.Mission
	default:
		return ""
	}
}

func (st *State) snapshot(now time.Time) Snapshot {
	return Snapshot{
		ID:                st.ID,
		Status:            st.Status,
		Total:             st.Total,
		Elapsed:           st.Elapsed(now),
		Remaining:         st.Remaining(now),
		CreatedAt:         st.CreatedAt,
		LastCheckedAt:     st.LastCheckedAt,
		PausedFor:         st.PausedFor,
		PauseUntil:        st.PauseUntil,
		Reason:            st.Reason,
		Mission:           st.Mission,
		TerminationReason: st.TerminationReason,
		Detached:          st.Detached,
	}
}
