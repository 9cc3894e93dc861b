// Package ring provides a fixed-capacity circular buffer.
//
// The buffer keeps the most recent N values: once full, each Push overwrites
// the oldest entry. This is the memory model used by the load-sample and
// execution-time histories, where bounded footprint matters more than
// completeness.
package ring

// Buffer is a fixed-capacity overwrite-on-wrap circular buffer.
//
// The zero value is not usable; create one with New. Buffer is not
// goroutine-safe: histories are owned and mutated by a single context.
type Buffer[T any] struct {
	buf   []T
	head  int // index of the next write
	count int
}

func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

func (b *Buffer[T]) Cap() int { return len(b.buf) }

// Len reports how many values are currently held, at most Cap.
func (b *Buffer[T]) Len() int { return b.count }

// Push appends v, overwriting the oldest value when full. Overwrite is
// intentional and silent: the buffer holds the most recent Cap() samples.
func (b *Buffer[T]) Push(v T) {
	b.buf[b.head] = v
	b.head = (b.head + 1) % len(b.buf)
	if b.count < len(b.buf) {
		b.count++
	}
}

// Last returns the most recently pushed value.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	idx := b.head - 1
	if idx < 0 {
		idx += len(b.buf)
	}
	return b.buf[idx], true
}

// Snapshot returns the held values oldest-first as a fresh slice.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, 0, b.count)
	start := b.head - b.count
	if start < 0 {
		start += len(b.buf)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.buf[(start+i)%len(b.buf)])
	}
	return out
}

// Reset drops all held values without releasing the backing array.
func (b *Buffer[T]) Reset() {
	b.head = 0
	b.count = 0
}
