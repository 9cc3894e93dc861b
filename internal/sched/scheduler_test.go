package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticksched/internal/cpuload"
	"ticksched/internal/eventbus"
	"ticksched/internal/tick"
	logx "ticksched/pkg/logx"
)

func testConfig(capacity int) Config {
	return Config{
		TimeStep:   100 * time.Microsecond,
		ClockHz:    25_000_000,
		Capacity:   capacity,
		ISREnabled: true,
	}
}

func testMeter(t *testing.T) *cpuload.Meter {
	t.Helper()
	m, err := cpuload.New(cpuload.Config{
		CyclesPerIteration: 25,
		ClockHz:            25_000_000,
		TimeStep:           100 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("meter: %v", err)
	}
	return m
}

func newTestScheduler(t *testing.T, capacity int) (*Scheduler, *tick.ManualSource) {
	t.Helper()
	src := tick.NewManualSource()
	s, err := New(testConfig(capacity), src, testMeter(t), nil, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, src
}

// tickOnce fires one tick and services it.
func tickOnce(t *testing.T, s *Scheduler, src *tick.ManualSource) int {
	t.Helper()
	src.Fire()
	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	return n
}

func mustStart(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestPeriodicDispatchCounts(t *testing.T) {
	s, src := newTestScheduler(t, 4)

	var order []string
	mustRegister(t, s, "A", 2, func() { order = append(order, "A") })
	mustRegister(t, s, "B", 3, func() { order = append(order, "B") })
	mustStart(t, s)
	defer s.Stop()

	for i := 0; i < 6; i++ {
		tickOnce(t, s, src)
	}

	// Over 6 ticks: A at 2, 4, 6; B at 3, 6. Both due at 6, A first.
	want := []string{"A", "B", "A", "A", "B"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestRegistrationOrderBreaksTies(t *testing.T) {
	s, src := newTestScheduler(t, 4)

	var order []string
	mustRegister(t, s, "second-registered", 1, func() { order = append(order, "second-registered") })
	mustRegister(t, s, "first-period", 1, func() { order = append(order, "first-period") })
	mustStart(t, s)
	defer s.Stop()

	tickOnce(t, s, src)
	if len(order) != 2 || order[0] != "second-registered" {
		t.Fatalf("dispatch must follow registration order, got %v", order)
	}
}

func TestEnableRestartsPhase(t *testing.T) {
	s, src := newTestScheduler(t, 4)

	var runs int
	mustRegister(t, s, "T", 3, func() { runs++ })
	mustStart(t, s)
	defer s.Stop()

	tickOnce(t, s, src) // phase 2
	if err := s.Disable("T"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	for i := 0; i < 5; i++ {
		tickOnce(t, s, src)
	}
	if runs != 0 {
		t.Fatalf("disabled task must not run, got %d runs", runs)
	}
	if err := s.Enable("T"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Re-enable restarts the countdown from the full period: due exactly
	// three ticks later, not on the stale pre-disable phase.
	tickOnce(t, s, src)
	tickOnce(t, s, src)
	if runs != 0 {
		t.Fatalf("task ran on a stale phase, got %d runs", runs)
	}
	tickOnce(t, s, src)
	if runs != 1 {
		t.Fatalf("expected exactly one run three ticks after enable, got %d", runs)
	}
}

func TestEnableWhileEnabledKeepsPhase(t *testing.T) {
	s, src := newTestScheduler(t, 4)

	var runs int
	mustRegister(t, s, "T", 3, func() { runs++ })
	mustStart(t, s)
	defer s.Stop()

	tickOnce(t, s, src)
	tickOnce(t, s, src)
	if err := s.Enable("T"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	tickOnce(t, s, src)
	if runs != 1 {
		t.Fatalf("enable on an enabled task must not reset the countdown, got %d runs", runs)
	}
}

func TestTaskMayToggleSiblings(t *testing.T) {
	s, src := newTestScheduler(t, 4)

	var bRuns int
	mustRegister(t, s, "A", 1, func() {
		if err := s.Disable("B"); err != nil {
			t.Errorf("disable from task: %v", err)
		}
	})
	mustRegister(t, s, "B", 1, func() { bRuns++ })
	mustStart(t, s)
	defer s.Stop()

	// A runs first and disables B; the same tick's collected dispatch list
	// still includes B, but later ticks must not.
	tickOnce(t, s, src)
	firstTick := bRuns
	tickOnce(t, s, src)
	tickOnce(t, s, src)
	if bRuns != firstTick {
		t.Fatalf("B ran after being disabled by A: %d -> %d", firstTick, bRuns)
	}
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestScheduler(t, 2)

	var ce *ConfigError
	if err := s.Register("x", 0, func() {}, true); !errors.As(err, &ce) {
		t.Fatalf("zero period: expected ConfigError, got %v", err)
	}
	if err := s.Register("x", 1, nil, true); !errors.As(err, &ce) {
		t.Fatalf("nil callback: expected ConfigError, got %v", err)
	}

	mustRegister(t, s, "a", 1, func() {})
	mustRegister(t, s, "b", 1, func() {})
	if err := s.Register("c", 1, func() {}, true); !errors.As(err, &ce) {
		t.Fatalf("full registry: expected ConfigError, got %v", err)
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	mustRegister(t, s, "a", 1, func() {})
	mustStart(t, s)
	defer s.Stop()

	var ce *ConfigError
	if err := s.Register("late", 1, func() {}, true); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError after start, got %v", err)
	}
}

func TestBadConfigRejected(t *testing.T) {
	src := tick.NewManualSource()
	meter := testMeter(t)

	if _, err := New(Config{TimeStep: time.Millisecond, ClockHz: 100_000_000, Capacity: 4}, src, meter, nil, logx.Nop(), nil); err == nil {
		t.Fatalf("expected period-range rejection")
	}
	if _, err := New(testConfig(0), src, meter, nil, logx.Nop(), nil); err == nil {
		t.Fatalf("expected capacity rejection")
	}
	if _, err := New(testConfig(4), nil, meter, nil, logx.Nop(), nil); err == nil {
		t.Fatalf("expected missing-source rejection")
	}
	if _, err := New(testConfig(4), src, nil, nil, logx.Nop(), nil); err == nil {
		t.Fatalf("expected missing-meter rejection")
	}
}

func TestOverrunCountedNotReplayed(t *testing.T) {
	bus := eventbus.New()
	src := tick.NewManualSource()
	s, err := New(testConfig(4), src, testMeter(t), nil, logx.Nop(), bus)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	events, unsub := bus.Subscribe(8)
	defer unsub()

	var runs int
	mustRegister(t, s, "slow", 1, func() {
		runs++
		if runs == 1 {
			// Two boundaries pass while the task body is still running.
			src.Fire()
			src.Fire()
		}
	})
	mustStart(t, s)
	defer s.Stop()

	tickOnce(t, s, src)

	snap := s.Snapshot()
	if snap.Overruns != 1 {
		t.Fatalf("expected 1 overrun, got %d", snap.Overruns)
	}
	if snap.MissedTicks != 1 {
		t.Fatalf("expected 1 missed raise, got %d", snap.MissedTicks)
	}

	// The backlog is exactly one tick: the next RunOnce consumes it without
	// a new Fire, and no further ticks are replayed.
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if runs != 2 {
		t.Fatalf("expected the pending tick to dispatch once, got %d runs", runs)
	}

	var sawOverrun bool
	for {
		select {
		case e := <-events:
			if e.Type == eventbus.EventOverrun {
				if _, ok := e.Data.(OverrunInfo); !ok {
					t.Fatalf("overrun event data: %T", e.Data)
				}
				sawOverrun = true
			}
			continue
		default:
		}
		break
	}
	if !sawOverrun {
		t.Fatalf("expected an overrun event on the bus")
	}
}

func TestRunOnceStopsOnContext(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	mustRegister(t, s, "a", 1, func() {})
	mustStart(t, s)
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	s, src := newTestScheduler(t, 4)
	mustRegister(t, s, "A", 2, func() {})
	mustRegister(t, s, "B", 5, func() {})
	mustStart(t, s)
	defer s.Stop()

	for i := 0; i < 4; i++ {
		tickOnce(t, s, src)
	}

	snap := s.Snapshot()
	if !snap.Running {
		t.Fatalf("expected running")
	}
	if snap.Ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", snap.Ticks)
	}
	if snap.Dispatched != 2 {
		t.Fatalf("expected 2 dispatches, got %d", snap.Dispatched)
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	a := snap.Tasks[0]
	if a.Name != "A" || a.Runs != 2 || a.Period != 2 {
		t.Fatalf("unexpected task info: %+v", a)
	}
	if !snap.LoadKnown {
		t.Fatalf("calibrated meter must report known load")
	}
	if len(snap.LoadHistory) != 4 {
		t.Fatalf("expected 4 load samples, got %d", len(snap.LoadHistory))
	}
	if len(snap.Samples) != 2 {
		t.Fatalf("expected 2 profiler samples, got %d", len(snap.Samples))
	}
}

func TestStopIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	mustRegister(t, s, "a", 1, func() {})
	mustStart(t, s)
	s.Stop()
	s.Stop()
	if snap := s.Snapshot(); snap.Running {
		t.Fatalf("expected stopped")
	}
}

func TestDoubleStartFails(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	mustStart(t, s)
	defer s.Stop()
	var ce *ConfigError
	if err := s.Start(context.Background()); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError on double start, got %v", err)
	}
}

func mustRegister(t *testing.T, s *Scheduler, name string, period uint32, fn TaskFunc) {
	t.Helper()
	if err := s.Register(name, period, fn, true); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}
