// Package tick defines the tick-source contract the dispatcher runs against.
//
// A tick source models a fixed-period hardware timer: it is configured once
// with a time step and clock frequency, armed with Start, and from then on
// delivers one raise per period from its own execution context (the hardware
// interrupt on a target, a goroutine on a host). The raise callback must do
// bounded minimal work (it only sets the pending flag) and must never call
// into task callbacks or instrumentation.
//
// The pending Flag is the single piece of state shared between the raise
// context and the dispatch loop; all access goes through sync/atomic so a
// raise is never lost or torn. A raise that finds the flag still pending is
// counted as a missed tick rather than silently dropped.
package tick
