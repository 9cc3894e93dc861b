// Package sched is the cooperative dispatch core: a fixed-capacity ordered
// task registry driven by a fixed-period tick source.
//
// Each consumed tick advances every enabled task's phase countdown by one;
// tasks reaching zero are reset to their period and invoked in strict
// registration order, bracketed by the execution-time profiler. Between
// ticks the dispatcher spin-waits on the pending flag; it never sleeps,
// because each spin iteration is the CPU load meter's probe.
//
// There is no preemption and no catch-up: a tick boundary reached before the
// previous dispatch finished is counted as an overrun and otherwise ignored;
// due tasks simply run on the next tick the dispatcher observes. The
// integrator keeps the sum of worst-case task times under the tick period;
// the dispatcher does not enforce this, the profiler exists to verify it.
package sched
