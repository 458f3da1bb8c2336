package timer

import (
	"strings"
	"testing"
	"time"
)

func TestElapsedExcludesPauses(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		st      State
		at      time.Duration // offset from base
		elapsed time.Duration
	}{
		{
			name:    "fresh timer",
			st:      State{CreatedAt: base, Total: time.Minute, Status: StatusRunning},
			at:      10 * time.Second,
			elapsed: 10 * time.Second,
		},
		{
			name: "completed pause excluded",
			st: State{
				CreatedAt: base, Total: time.Minute,
				Status: StatusRunning, PausedFor: 20 * time.Second,
			},
			at:      30 * time.Second,
			elapsed: 10 * time.Second,
		},
		{
			name: "pause in progress excluded",
			st: State{
				CreatedAt: base, Total: time.Minute,
				Status: StatusPaused, PausedAt: base.Add(15 * time.Second),
			},
			at:      40 * time.Second,
			elapsed: 15 * time.Second,
		},
		{
			name: "both pause kinds excluded",
			st: State{
				CreatedAt: base, Total: time.Minute,
				Status: StatusPaused, PausedFor: 5 * time.Second,
				PausedAt: base.Add(20 * time.Second),
			},
			at:      50 * time.Second,
			elapsed: 15 * time.Second,
		},
		{
			name: "never negative",
			st: State{
				CreatedAt: base, Total: time.Minute,
				Status: StatusRunning, PausedFor: time.Hour,
			},
			at:      10 * time.Second,
			elapsed: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			now := base.Add(tc.at)
			if got := tc.st.Elapsed(now); got != tc.elapsed {
				t.Fatalf("Elapsed = %s, want %s", got, tc.elapsed)
			}
			wantRemaining := tc.st.Total - tc.elapsed
			if wantRemaining < 0 {
				wantRemaining = 0
			}
			if got := tc.st.Remaining(now); got != wantRemaining {
				t.Fatalf("Remaining = %s, want %s", got, wantRemaining)
			}
		})
	}
}

func TestRemainingClampsAtZero(t *testing.T) {
	t.Parallel()
	base := time.Now()
	st := State{CreatedAt: base, Total: time.Second, Status: StatusRunning}
	if got := st.Remaining(base.Add(time.Minute)); got != 0 {
		t.Fatalf("Remaining past deadline = %s, want 0", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusRunning, StatusPaused, StatusBackground} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusStopped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()
	a, b := NewID(), NewID()
	if !strings.HasPrefix(a, "tmr-") {
		t.Fatalf("id %q missing prefix", a)
	}
	if a == b {
		t.Fatalf("ids must be unique, got %q twice", a)
	}
}

func TestSnapshotPurpose(t *testing.T) {
	t.Parallel()
	if got := (Snapshot{Reason: "deploy finished"}).Purpose(); got != "reason: deploy finished" {
		t.Fatalf("Purpose = %q", got)
	}
	if got := (Snapshot{Mission: "rotate keys"}).Purpose(); got != "mission: rotate keys" {
		t.Fatalf("Purpose = %q", got)
	}
	if got := (Snapshot{}).Purpose(); got != "" {
		t.Fatalf("Purpose = %q, want empty", got)
	}
}
