// Package profile records per-invocation task execution times and optionally
// mirrors task boundaries onto a debug output pin.
//
// Durations land in a fixed-capacity ring holding the most recent N samples;
// the oldest entry is overwritten on wraparound and no error is raised. The
// profiler is purely observational: it never influences dispatch order or
// timing decisions.
//
// # Clock-out pin convention
//
// With clock-out enabled the pin frames each task invocation so an external
// logic analyzer can place task boundaries on a timeline:
//
//	plain:    pin goes high at task entry and low at task exit.
//	detailed: at entry the pin first emits (index+1) narrow marker pulses
//	          (high/low with no deliberate stretching, so they are visibly
//	          narrower than any task body), then stays high for the body and
//	          drops low at exit. Counting the leading pulses recovers the
//	          task's registration index (task 0 → 1 pulse, task 1 → 2, ...).
//
// Marker pulses are emitted before the entry timestamp is captured, so the
// recorded duration covers only the task body. Each pin write is a single
// bounded-latency operation; the profiler never blocks or spins on the pin.
package profile
