package sched

import (
	"time"
)

// Config mirrors the task-manager options of the firmware: tick timing,
// registry capacity, interrupt wiring.
type Config struct {
	// TimeStep is the tick period.
	TimeStep time.Duration
	// ClockHz is the instruction clock the timer counts.
	ClockHz uint64
	// Capacity bounds the registry. Fixed at construction: growing it during
	// operation would mean allocation latency in the dispatch path.
	Capacity int

	ISRPriority int
	ISREnabled  bool
}

// TaskFunc is a scheduled callback: no arguments, no result, expected to run
// to completion in bounded time. Faults inside a callback are the
// application's problem; the dispatcher neither catches nor suppresses them.
type TaskFunc func()

// task is a registry slot. phase is mutated only by the dispatch loop;
// enabled by Enable/Disable under the scheduler lock.
type task struct {
	name    string
	fn      TaskFunc
	period  uint32
	phase   uint32
	enabled bool

	runs  uint64
	total time.Duration
}

// TaskInfo is the externally visible state of one registry slot.
type TaskInfo struct {
	Index   int
	Name    string
	Period  uint32
	Phase   uint32
	Enabled bool
	Runs    uint64
	Total   time.Duration
}

// OverrunInfo is attached to overrun bus events.
type OverrunInfo struct {
	Tick   uint64
	Missed uint64
}
