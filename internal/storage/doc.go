package storage

// Package storage provides tickd's optional persistence layer.
//
// It persists TimerRecord rows keyed by id so non-terminal timers can be
// reloaded after a restart. Callers get no durability guarantee; the registry
// writes through on a best-effort basis.
