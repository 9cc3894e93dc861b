package tick

import "sync/atomic"

// Flag is the tick-pending cell shared between the raise context and the
// dispatch loop.
//
// Set/clear discipline: exactly one Raise and one Consume per period under
// correct operation. A Raise landing on an already-pending flag means the
// previous tick was never serviced in time; it is recorded as a missed tick
// so overruns are observable instead of silently lost.
type Flag struct {
	pending atomic.Uint32
	raised  atomic.Uint64
	missed  atomic.Uint64
}

// Raise marks a tick pending. Safe to call from any context; does bounded
// work (two atomic ops) so it is fit for interrupt-context use.
func (f *Flag) Raise() {
	f.raised.Add(1)
	if !f.pending.CompareAndSwap(0, 1) {
		f.missed.Add(1)
	}
}

// Consume clears the pending flag, reporting whether a tick was pending.
func (f *Flag) Consume() bool {
	return f.pending.CompareAndSwap(1, 0)
}

// Pending reports whether a tick is waiting to be consumed.
func (f *Flag) Pending() bool { return f.pending.Load() == 1 }

// Raised returns the total number of raises observed.
func (f *Flag) Raised() uint64 { return f.raised.Load() }

// Missed returns the number of raises that found the flag still pending.
func (f *Flag) Missed() uint64 { return f.missed.Load() }
