package timer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tickd/internal/storage"
	logx "tickd/pkg/logx"
)

// DefaultMaxDuration bounds a single timer's total duration.
const DefaultMaxDuration = 24 * time.Hour

// DefaultTombstoneTTL controls how long terminal records stay distinguishable
// from never-existing ids.
const DefaultTombstoneTTL = 10 * time.Minute

// RegistryConfig controls the timer registry.
type RegistryConfig struct {
	MaxDuration  time.Duration
	TombstoneTTL time.Duration
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = DefaultTombstoneTTL
	}
	return c
}

// Registry is the single source of truth mapping timer id to State.
//
// One mutex serializes all mutations; the scheduler's countdown goroutines and
// caller-issued operations race on it, and whichever loses observes the
// updated status and no-ops. Terminal records are replaced by tombstones so a
// repeated stop yields "not active" instead of "not found"; tombstones are
// pruned by TTL.
type Registry struct {
	mu     sync.Mutex
	cfg    RegistryConfig
	log    logx.Logger
	store  storage.Store // nil when persistence is disabled
	now    func() time.Time
	timers map[string]*State
	tombs  map[string]tombstone
}

type tombstone struct {
	status Status
	at     time.Time
}

// NewRegistry creates an empty registry. store may be nil.
func NewRegistry(cfg RegistryConfig, store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		cfg:    cfg.withDefaults(),
		log:    log,
		store:  store,
		now:    time.Now,
		timers: map[string]*State{},
		tombs:  map[string]tombstone{},
	}
}

// MaxDuration reports the configured upper bound for total durations.
func (r *Registry) MaxDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.MaxDuration
}

// ValidateDuration checks a requested total duration against the configured
// bounds.
func (r *Registry) ValidateDuration(d time.Duration) error {
	r.mu.Lock()
	maxD := r.cfg.MaxDuration
	r.mu.Unlock()
	if d <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidDuration, d)
	}
	if d > maxD {
		return fmt.Errorf("%w: duration %s exceeds maximum %s", ErrInvalidDuration, d, maxD)
	}
	return nil
}

// Create allocates a new running timer. Exactly one of reason/mission may be
// non-empty (the caller validates); total must already be validated.
func (r *Registry) Create(total time.Duration, reason, mission string) (Snapshot, error) {
	if err := r.ValidateDuration(total); err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneTombsLocked()

	now := r.now()
	st := &State{
		ID:            NewID(),
		Total:         total,
		CreatedAt:     now,
		LastCheckedAt: now,
		Status:        StatusRunning,
		Reason:        reason,
		Mission:       mission,
	}
	r.timers[st.ID] = st
	r.persistLocked(st)
	return st.snapshot(now), nil
}

// Get returns a snapshot of a live timer. A tombstoned id reports its
// terminal status; an unknown id reports not-found.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.timers[id]
	if !ok {
		return Snapshot{}, r.missLocked(id)
	}
	return st.snapshot(r.now()), nil
}

// Update applies fn to a live timer under the registry lock and persists the
// result. fn returning an error aborts the mutation.
func (r *Registry) Update(id string, fn func(now time.Time, st *State) error) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.timers[id]
	if !ok {
		return Snapshot{}, r.missLocked(id)
	}
	now := r.now()
	if err := fn(now, st); err != nil {
		return st.snapshot(now), err
	}
	r.persistLocked(st)
	return st.snapshot(now), nil
}

// Remove drops a timer from the live table and leaves a tombstone carrying
// its terminal status.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.timers[id]
	if !ok {
		return
	}
	delete(r.timers, id)
	r.tombs[id] = tombstone{status: st.Status, at: r.now()}
	r.pruneTombsLocked()
	if r.store != nil {
		if err := r.store.DeleteTimer(context.Background(), id); err != nil {
			r.log.Warn("timer delete not persisted", logx.String("id", id), logx.Err(err))
		}
	}
}

// List returns snapshots of all live timers, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]Snapshot, 0, len(r.timers))
	for _, st := range r.timers {
		out = append(out, st.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Load restores non-terminal timers from the store. Terminal leftovers are
// deleted rather than restored.
func (r *Registry) Load(ctx context.Context) ([]Snapshot, error) {
	if r.store == nil {
		return nil, nil
	}
	recs, err := r.store.LoadTimers(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []Snapshot
	for _, rec := range recs {
		st := stateFromRecord(rec)
		if st.ID == "" || st.Status.Terminal() {
			_ = r.store.DeleteTimer(ctx, rec.ID)
			continue
		}
		r.timers[st.ID] = st
		out = append(out, st.snapshot(now))
	}
	return out, nil
}

func (r *Registry) missLocked(id string) error {
	if tomb, ok := r.tombs[id]; ok {
		return fmt.Errorf("timer %s: %w (already %s)", id, ErrNotActive, tomb.status)
	}
	return fmt.Errorf("timer %s: %w", id, ErrNotFound)
}

func (r *Registry) pruneTombsLocked() {
	cutoff := r.now().Add(-r.cfg.TombstoneTTL)
	for id, tomb := range r.tombs {
		if tomb.at.Before(cutoff) {
			delete(r.tombs, id)
		}
	}
}

// persistLocked writes through to the store, best effort.
func (r *Registry) persistLocked(st *State) {
	if r.store == nil {
		return
	}
	if err := r.store.PutTimer(context.Background(), recordFromState(st)); err != nil {
		r.log.Warn("timer state not persisted", logx.String("id", st.ID), logx.Err(err))
	}
}

func recordFromState(st *State) storage.TimerRecord {
	return storage.TimerRecord{
		ID:            st.ID,
		TotalMS:       st.Total.Milliseconds(),
		CreatedAt:     st.CreatedAt,
		LastCheckedAt: st.LastCheckedAt,
		PausedForMS:   st.PausedFor.Milliseconds(),
		PausedAt:      st.PausedAt,
		PauseUntil:    st.PauseUntil,
		Status:        string(st.Status),
		Reason:        st.Reason,
		Mission:       st.Mission,
		Termination:   st.TerminationReason,
		Detached:      st.Detached,
	}
}

func stateFromRecord(rec storage.TimerRecord) *State {
	return &State{
		ID:                rec.ID,
		Total:             time.Duration(rec.TotalMS) * time.Millisecond,
		CreatedAt:         rec.CreatedAt,
		LastCheckedAt:     rec.LastCheckedAt,
		PausedFor:         time.Duration(rec.PausedForMS) * time.Millisecond,
		PausedAt:          rec.PausedAt,
		PauseUntil:        rec.PauseUntil,
		Status:            Status(rec.Status),
		Reason:            rec.Reason,
		Mission:           rec.Mission,
		TerminationReason: rec.Termination,
		Detached:          rec.Detached,
	}
}
