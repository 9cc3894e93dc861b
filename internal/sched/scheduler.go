package sched

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ticksched/internal/cpuload"
	"ticksched/internal/eventbus"
	"ticksched/internal/profile"
	"ticksched/internal/tick"
	logx "ticksched/pkg/logx"
)

// spinBatch bounds how many idle iterations pass between context checks in
// the wait loop. Keep it a power of two; the modulo must stay cheap because
// the loop body is the load meter's unit of measurement.
const spinBatch = 1024

// Scheduler owns the registry, the pending flag, and the instrumentation.
// One instance per tick source; all run-time statistics live here rather
// than in package globals, so tests can run independent instances.
type Scheduler struct {
	cfg  Config
	src  tick.Source
	flag tick.Flag

	meter *cpuload.Meter
	prof  *profile.Profiler
	log   logx.Logger
	bus   eventbus.Bus

	warnLimit *rate.Limiter

	mu         sync.Mutex
	tasks      []task
	started    bool
	ticks      uint64
	dispatched uint64
	overruns   uint64
}

// New validates the configuration and builds a scheduler. The timer period
// is derived here so an out-of-range time step is rejected before anything
// is armed.
func New(cfg Config, src tick.Source, meter *cpuload.Meter, prof *profile.Profiler, log logx.Logger, bus eventbus.Bus) (*Scheduler, error) {
	if _, err := tick.Reload(cfg.ClockHz, cfg.TimeStep); err != nil {
		return nil, err
	}
	if cfg.Capacity < 1 {
		return nil, configErrf("capacity", "must be at least 1, got %d", cfg.Capacity)
	}
	if src == nil {
		return nil, configErrf("source", "tick source is required")
	}
	if meter == nil {
		return nil, configErrf("meter", "cpu load meter is required")
	}
	if prof == nil {
		prof = profile.New(profile.Config{}, profile.NopPin{})
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:       cfg,
		src:       src,
		meter:     meter,
		prof:      prof,
		log:       log,
		bus:       bus,
		warnLimit: rate.NewLimiter(rate.Every(time.Second), 3),
		tasks:     make([]task, 0, cfg.Capacity),
	}, nil
}

// Register adds a task during setup. Registration order is dispatch
// priority: earlier entries run first when simultaneously due. Fails once
// the scheduler has started or the registry is full.
func (s *Scheduler) Register(name string, period uint32, fn TaskFunc, enabled bool) error {
	if fn == nil {
		return configErrf("task", "%s: callback is required", name)
	}
	if period == 0 {
		return configErrf("task", "%s: period must be at least one tick", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return configErrf("task", "%s: registry is closed after start", name)
	}
	if len(s.tasks) >= s.cfg.Capacity {
		return configErrf("task", "%s: registry full (capacity %d)", name, s.cfg.Capacity)
	}
	s.tasks = append(s.tasks, task{
		name:    name,
		fn:      fn,
		period:  period,
		phase:   period,
		enabled: enabled,
	})
	return nil
}

// Enable re-arms a task. The phase restarts from the full period, so a task
// re-enabled at tick k is next due at tick k+period, never on a stale
// pre-disable countdown.
func (s *Scheduler) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(name)
	if t == nil {
		return configErrf("task", "%s: not registered", name)
	}
	if !t.enabled {
		t.enabled = true
		t.phase = t.period
	}
	return nil
}

// Disable excludes a task from phase advancement entirely.
func (s *Scheduler) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(name)
	if t == nil {
		return configErrf("task", "%s: not registered", name)
	}
	t.enabled = false
	return nil
}

func (s *Scheduler) find(name string) *task {
	for i := range s.tasks {
		if s.tasks[i].name == name {
			return &s.tasks[i]
		}
	}
	return nil
}

// Start configures and arms the tick source and closes the registry.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return configErrf("scheduler", "already started")
	}
	s.started = true
	n := len(s.tasks)
	s.mu.Unlock()

	tcfg := tick.Config{
		TimeStep:    s.cfg.TimeStep,
		ClockHz:     s.cfg.ClockHz,
		ISRPriority: s.cfg.ISRPriority,
		ISREnabled:  s.cfg.ISREnabled,
	}
	if err := s.src.Configure(tcfg); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}
	if err := s.src.Start(ctx, s.flag.Raise); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	if !s.meter.Calibrated() {
		s.log.Warn("cpu load meter uncalibrated, load reports as unknown")
	}
	s.log.Info("scheduler started",
		logx.Duration("time_step", s.cfg.TimeStep),
		logx.Uint64("clock_hz", s.cfg.ClockHz),
		logx.Int("tasks", n),
		logx.Int("isr_priority", s.cfg.ISRPriority))
	s.publish(eventbus.EventStarted, nil)
	return nil
}

// Stop disarms the tick source. In-progress RunOnce calls finish on their
// own; a blocked wait loop is released by its context.
func (s *Scheduler) Stop() {
	s.src.Stop()
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.mu.Unlock()
	if wasStarted {
		s.log.Info("scheduler stopped")
		s.publish(eventbus.EventStopped, nil)
	}
}

// Run dispatches ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			return err
		}
	}
}

// RunOnce services exactly one tick: it spin-waits for the pending flag
// (feeding the load meter), advances phases, and invokes due tasks in
// registration order. Returns how many tasks were dispatched.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	idle, err := s.waitTick(ctx)
	if err != nil {
		return 0, err
	}

	s.meter.Record(idle)

	// Advance phases under the lock; run callbacks outside it so a task may
	// enable or disable its peers.
	s.mu.Lock()
	s.ticks++
	tickNo := s.ticks
	type due struct {
		index int
		name  string
		fn    TaskFunc
	}
	var dueTasks []due
	for i := range s.tasks {
		t := &s.tasks[i]
		if !t.enabled {
			continue
		}
		t.phase--
		if t.phase == 0 {
			t.phase = t.period
			dueTasks = append(dueTasks, due{index: i, name: t.name, fn: t.fn})
		}
	}
	s.mu.Unlock()

	for _, d := range dueTasks {
		elapsed := s.prof.Invoke(d.index, d.name, d.fn)
		s.mu.Lock()
		s.dispatched++
		if d.index < len(s.tasks) {
			s.tasks[d.index].runs++
			s.tasks[d.index].total += elapsed
		}
		s.mu.Unlock()
	}

	// A tick boundary passed while we were dispatching: count it, don't
	// replay it. The pending flag is left set for the next RunOnce.
	if len(dueTasks) > 0 && s.flag.Pending() {
		s.noteOverrun(tickNo)
	}
	return len(dueTasks), nil
}

// waitTick spins on the pending flag, counting iterations for the load
// meter. It never sleeps: slept-through time would be invisible to the
// meter. Gosched keeps the hosted tick goroutine runnable.
func (s *Scheduler) waitTick(ctx context.Context) (uint32, error) {
	var idle uint32
	for !s.flag.Consume() {
		idle++
		if idle%spinBatch == 0 && ctx.Err() != nil {
			return idle, ctx.Err()
		}
		runtime.Gosched()
	}
	return idle, nil
}

func (s *Scheduler) noteOverrun(tickNo uint64) {
	s.mu.Lock()
	s.overruns++
	n := s.overruns
	s.mu.Unlock()

	missed := s.flag.Missed()
	if s.warnLimit.Allow() {
		s.log.Warn("tick overrun, schedule will not catch up",
			logx.Uint64("tick", tickNo),
			logx.Uint64("overruns", n),
			logx.Uint64("missed_ticks", missed))
	}
	s.publish(eventbus.EventOverrun, OverrunInfo{Tick: tickNo, Missed: missed})
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Flag exposes the pending flag for startup calibration, which must run
// before the dispatch loop owns tick consumption.
func (s *Scheduler) Flag() *tick.Flag { return &s.flag }

// Meter returns the scheduler's load meter.
func (s *Scheduler) Meter() *cpuload.Meter { return s.meter }

// Profiler returns the scheduler's execution-time profiler.
func (s *Scheduler) Profiler() *profile.Profiler { return s.prof }
