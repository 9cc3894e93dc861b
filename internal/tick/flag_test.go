package tick

import "testing"

func TestRaiseConsume(t *testing.T) {
	var f Flag
	if f.Pending() {
		t.Fatalf("new flag should not be pending")
	}
	if f.Consume() {
		t.Fatalf("consume on empty flag should report false")
	}
	f.Raise()
	if !f.Pending() {
		t.Fatalf("flag should be pending after raise")
	}
	if !f.Consume() {
		t.Fatalf("consume should report true for a pending tick")
	}
	if f.Pending() {
		t.Fatalf("flag should be clear after consume")
	}
	if f.Raised() != 1 || f.Missed() != 0 {
		t.Fatalf("expected 1 raise, 0 missed; got %d/%d", f.Raised(), f.Missed())
	}
}

func TestRaiseWhilePendingCountsMissed(t *testing.T) {
	var f Flag
	f.Raise()
	f.Raise()
	f.Raise()
	if f.Missed() != 2 {
		t.Fatalf("expected 2 missed raises, got %d", f.Missed())
	}
	if f.Raised() != 3 {
		t.Fatalf("expected 3 total raises, got %d", f.Raised())
	}
	// The backlog never exceeds one tick.
	if !f.Consume() {
		t.Fatalf("one tick should be pending")
	}
	if f.Consume() {
		t.Fatalf("missed raises must not replay")
	}
}
