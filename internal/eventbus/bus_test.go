package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: EventStarted})

	select {
	case e := <-ch:
		if e.Type != EventStarted {
			t.Fatalf("unexpected type %q", e.Type)
		}
		if e.Time.IsZero() {
			t.Fatalf("publish must stamp a time")
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: EventOverrun})
	b.Publish(Event{Type: EventOverrun})
	b.Publish(Event{Type: EventStopped})

	// Buffer of one: only the first event is retained, the rest dropped.
	e := <-ch
	if e.Type != EventOverrun {
		t.Fatalf("unexpected type %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %q", e.Type)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Publish after unsubscribe must not panic and must not deliver.
	b.Publish(Event{Type: EventStarted})
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}
