package timer

import (
	"errors"
	"testing"
	"time"

	logx "tickd/pkg/logx"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(RegistryConfig{MaxDuration: time.Hour, TombstoneTTL: time.Minute}, nil, logx.Nop())
}

func TestValidateDuration(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	tests := []struct {
		name string
		d    time.Duration
		ok   bool
	}{
		{"positive", 30 * time.Second, true},
		{"at max", time.Hour, true},
		{"zero", 0, false},
		{"negative", -time.Second, false},
		{"above max", time.Hour + time.Second, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := r.ValidateDuration(tc.d)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("error = %v, want ErrInvalidDuration", err)
			}
		})
	}
}

func TestCreateGetUpdate(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	snap, err := r.Create(time.Minute, "deploy finished", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.Status != StatusRunning {
		t.Fatalf("status = %s, want running", snap.Status)
	}
	if snap.Total != time.Minute || snap.Reason != "deploy finished" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	got, err := r.Get(snap.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != snap.ID {
		t.Fatalf("Get returned %s, want %s", got.ID, snap.ID)
	}

	updated, err := r.Update(snap.ID, func(now time.Time, st *State) error {
		st.Status = StatusBackground
		st.Detached = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != StatusBackground || !updated.Detached {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestUpdateErrorAbortsMutation(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	snap, _ := r.Create(time.Minute, "", "check inbox")

	boom := errors.New("boom")
	_, err := r.Update(snap.ID, func(now time.Time, st *State) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestMissUnknownVersusTombstoned(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	if _, err := r.Get("tmr-nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id error = %v, want ErrNotFound", err)
	}

	snap, _ := r.Create(time.Minute, "x", "")
	_, _ = r.Update(snap.ID, func(now time.Time, st *State) error {
		st.Status = StatusStopped
		return nil
	})
	r.Remove(snap.ID)

	_, err := r.Get(snap.ID)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("tombstoned id error = %v, want ErrNotActive", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("tombstoned id must not report not-found")
	}
}

func TestTombstonePrune(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	snap, _ := r.Create(time.Minute, "x", "")
	_, _ = r.Update(snap.ID, func(now time.Time, st *State) error {
		st.Status = StatusCompleted
		return nil
	})
	r.Remove(snap.ID)

	// Advance the registry clock past the tombstone TTL.
	r.mu.Lock()
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	r.mu.Unlock()

	_, _ = r.Create(time.Minute, "trigger prune", "") // prunes on mutation
	if _, err := r.Get(snap.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pruned id error = %v, want ErrNotFound", err)
	}
}

func TestListOldestFirst(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	ts := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := ts.Add(time.Duration(2-i) * time.Minute) // create newest first
		r.mu.Lock()
		r.now = func() time.Time { return at }
		r.mu.Unlock()
		if _, err := r.Create(time.Minute, "x", ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) {
			t.Fatalf("list not sorted oldest first: %v", list)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
}
