package ring

import "testing"

func TestPushBelowCapacity(t *testing.T) {
	b := New[int](4)
	b.Push(1)
	b.Push(2)
	if b.Len() != 2 {
		t.Fatalf("expected len 2, got %d", b.Len())
	}
	got := b.Snapshot()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestWrapOverwritesOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3 after wrap, got %d", b.Len())
	}
	got := b.Snapshot()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v oldest-first, got %v", want, got)
		}
	}
}

func TestLast(t *testing.T) {
	b := New[string](2)
	if _, ok := b.Last(); ok {
		t.Fatalf("expected no last on empty buffer")
	}
	b.Push("a")
	b.Push("b")
	b.Push("c")
	last, ok := b.Last()
	if !ok || last != "c" {
		t.Fatalf("expected last=c, got %q ok=%v", last, ok)
	}
}

func TestReset(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected empty after reset, got len %d", b.Len())
	}
	if got := b.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}
