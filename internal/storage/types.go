package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TimerRecord is the persisted form of one timer.
// Keep it compact and schema-stable; durations are stored as milliseconds.
type TimerRecord struct {
	ID            string    `json:"id"`
	TotalMS       int64     `json:"total_ms"`
	CreatedAt     time.Time `json:"created_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	PausedForMS   int64     `json:"paused_for_ms,omitempty"`
	PausedAt      time.Time `json:"paused_at,omitempty"`
	PauseUntil    time.Time `json:"pause_until,omitempty"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Mission       string    `json:"mission,omitempty"`
	Termination   string    `json:"termination,omitempty"`
	Detached      bool      `json:"detached,omitempty"`
}
