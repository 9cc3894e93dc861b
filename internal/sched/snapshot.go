package sched

import (
	"ticksched/internal/cpuload"
	"ticksched/internal/profile"
)

// Snapshot is a point-in-time view of the scheduler and its instrumentation
// for the reporter, the diagnostics server, and tests.
type Snapshot struct {
	Running bool

	Ticks      uint64
	Dispatched uint64
	// Overruns counts tick boundaries reached while dispatch was still
	// running; MissedTicks counts raises that found the flag already
	// pending. Together they cover every boundary violation.
	Overruns    uint64
	MissedTicks uint64

	// Load is the latest load percentage; LoadKnown is false while the
	// meter is uncalibrated (Load then holds cpuload.LoadUnknown).
	Load        int
	LoadKnown   bool
	LoadHistory []int

	Tasks   []TaskInfo
	Samples []profile.Sample
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:     s.started,
		Ticks:       s.ticks,
		Dispatched:  s.dispatched,
		Overruns:    s.overruns,
		MissedTicks: s.flag.Missed(),
		Tasks:       make([]TaskInfo, 0, len(s.tasks)),
	}
	for i := range s.tasks {
		t := &s.tasks[i]
		snap.Tasks = append(snap.Tasks, TaskInfo{
			Index:   i,
			Name:    t.name,
			Period:  t.period,
			Phase:   t.phase,
			Enabled: t.enabled,
			Runs:    t.runs,
			Total:   t.total,
		})
	}
	s.mu.Unlock()

	// Instrumentation carries its own locks; don't nest them under s.mu.
	load, known := s.meter.Load()
	if !known {
		load = cpuload.LoadUnknown
	}
	snap.Load = load
	snap.LoadKnown = known
	snap.LoadHistory = s.meter.Samples()
	snap.Samples = s.prof.Samples()
	return snap
}
