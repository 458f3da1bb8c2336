package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "tickd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickd")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	keep := TimerRecord{
		ID: "tmr-keep", TotalMS: 60000, CreatedAt: now, LastCheckedAt: now,
		Status: "running", Reason: "deploy finished", Detached: false,
	}
	gone := TimerRecord{
		ID: "tmr-gone", TotalMS: 1000, CreatedAt: now, LastCheckedAt: now,
		Status: "background", Mission: "rotate keys", Detached: true,
	}
	if err := st.PutTimer(ctx, keep); err != nil {
		t.Fatalf("PutTimer: %v", err)
	}
	if err := st.PutTimer(ctx, gone); err != nil {
		t.Fatalf("PutTimer: %v", err)
	}
	if err := st.DeleteTimer(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteTimer: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the journal replays put+put+delete into one surviving record.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	recs, err := st.LoadTimers(ctx)
	if err != nil {
		t.Fatalf("LoadTimers: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("loaded %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != keep.ID || got.TotalMS != keep.TotalMS || got.Status != keep.Status || got.Reason != keep.Reason {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", got, keep)
	}
	if !got.CreatedAt.Equal(keep.CreatedAt) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, keep.CreatedAt)
	}
}

func TestFileOverwriteKeepsLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickd")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	rec := TimerRecord{ID: "tmr-x", Status: "running", TotalMS: 1000}
	if err := st.PutTimer(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Status = "paused"
	rec.PausedForMS = 250
	if err := st.PutTimer(ctx, rec); err != nil {
		t.Fatal(err)
	}

	recs, err := st.LoadTimers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Status != "paused" || recs[0].PausedForMS != 250 {
		t.Fatalf("latest write lost: %+v", recs)
	}
}
