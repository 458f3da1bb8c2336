package timer

import "errors"

// Error taxonomy for the timer subsystem. All validation errors are returned
// synchronously from the facade; the notification queue never carries errors.
var (
	// ErrInvalidDuration is returned when a requested duration is zero,
	// negative, or exceeds the configured maximum.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrAmbiguousPurpose is returned when both a reason and a mission are
	// supplied for the same timer.
	ErrAmbiguousPurpose = errors.New("ambiguous purpose: reason and mission are mutually exclusive")

	// ErrNotFound is returned when the referenced id does not exist in the
	// registry.
	ErrNotFound = errors.New("timer not found")

	// ErrNotActive is returned for operations on a timer that has already
	// reached a terminal status (completed or stopped).
	ErrNotActive = errors.New("timer not active")
)
