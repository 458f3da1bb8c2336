package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TimerCreated, Data: "x"})

	select {
	case ev := <-ch:
		if ev.Type != TimerCreated {
			t.Fatalf("type = %s, want %s", ev.Type, TimerCreated)
		}
		if ev.Time.IsZero() {
			t.Fatal("publish must stamp time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()
	b := New()

	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TimerCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(4)
	unsub()
	unsub() // second call must not panic

	// Publishing after close must not panic either (recover path).
	b.Publish(Event{Type: TimerStopped})

	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}
}
