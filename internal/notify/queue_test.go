package notify

import (
	"strings"
	"testing"
	"time"

	logx "tickd/pkg/logx"
)

func TestEnqueueDrainOrder(t *testing.T) {
	t.Parallel()
	q := NewQueue(8, logx.Nop())

	if q.HasPending() {
		t.Fatal("new queue must be empty")
	}
	q.Enqueue(Event{TimerID: "tmr-a"})
	q.Enqueue(Event{TimerID: "tmr-b"})
	q.Enqueue(Event{TimerID: "tmr-c"})

	if !q.HasPending() || q.Len() != 3 {
		t.Fatalf("HasPending=%v Len=%d, want true/3", q.HasPending(), q.Len())
	}

	got := q.DrainAll()
	want := []string{"tmr-a", "tmr-b", "tmr-c"}
	if len(got) != len(want) {
		t.Fatalf("drained %d events, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.TimerID != want[i] {
			t.Fatalf("event %d = %s, want %s", i, e.TimerID, want[i])
		}
	}

	if q.HasPending() {
		t.Fatal("queue must be empty after drain")
	}
	if again := q.DrainAll(); len(again) != 0 {
		t.Fatalf("second drain returned %d events, want 0", len(again))
	}
}

func TestEnqueueDropsOldestAtCapacity(t *testing.T) {
	t.Parallel()
	q := NewQueue(2, logx.Nop())

	q.Enqueue(Event{TimerID: "tmr-1"})
	q.Enqueue(Event{TimerID: "tmr-2"})
	q.Enqueue(Event{TimerID: "tmr-3"})

	got := q.DrainAll()
	if len(got) != 2 || got[0].TimerID != "tmr-2" || got[1].TimerID != "tmr-3" {
		t.Fatalf("drained %v, want tmr-2 then tmr-3", got)
	}
	if q.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", q.Dropped())
	}
}

func TestEnqueueDefaultsCompletedAt(t *testing.T) {
	t.Parallel()
	q := NewQueue(0, logx.Nop())
	q.Enqueue(Event{TimerID: "tmr-x"})
	if got := q.DrainAll(); got[0].CompletedAt.IsZero() {
		t.Fatal("CompletedAt not defaulted")
	}
}

func TestFormatForInjection(t *testing.T) {
	t.Parallel()
	q := NewQueue(8, logx.Nop())

	if block, ok := q.FormatForInjection(); ok || block != "" {
		t.Fatalf("empty queue rendered %q, want none", block)
	}

	q.Enqueue(Event{
		TimerID: "tmr-1", Reason: "deploy finished",
		Total: 10 * time.Minute, Elapsed: 10 * time.Minute,
	})
	q.Enqueue(Event{
		TimerID: "tmr-2", Mission: "rotate keys",
		Total: time.Hour, Elapsed: time.Hour,
	})

	block, ok := q.FormatForInjection()
	if !ok {
		t.Fatal("expected a rendered block")
	}
	for _, want := range []string{
		"[system]",
		"(2)",
		"tmr-1",
		"reason: deploy finished",
		"tmr-2",
		"mission: rotate keys",
		"perform the scheduled task now",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
	if strings.Count(block, "perform the scheduled task now") != 1 {
		t.Errorf("mission directive must appear only for mission timers:\n%s", block)
	}

	// Draining through formatting consumes the events.
	if q.HasPending() {
		t.Fatal("FormatForInjection must drain the queue")
	}
}
