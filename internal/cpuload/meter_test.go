package cpuload

import (
	"testing"
	"time"
)

// 25 cycles per iteration against 2500 cycles per period makes each idle
// iteration exactly one percentage point, so the fixed-point math has no
// rounding to obscure the expected values.
func cleanMeter(t *testing.T) *Meter {
	t.Helper()
	m, err := New(Config{
		CyclesPerIteration: 25,
		ClockHz:            25_000_000,
		TimeStep:           100 * time.Microsecond,
		History:            10,
	})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	return m
}

func TestRecordFullyIdle(t *testing.T) {
	m := cleanMeter(t)
	if got := m.Record(100); got != 0 {
		t.Fatalf("a fully idle period should read 0%%, got %d", got)
	}
}

func TestRecordFullyBusy(t *testing.T) {
	m := cleanMeter(t)
	if got := m.Record(0); got != 100 {
		t.Fatalf("zero idle iterations should read 100%%, got %d", got)
	}
}

func TestRecordMidRange(t *testing.T) {
	m := cleanMeter(t)
	if got := m.Record(40); got != 60 {
		t.Fatalf("expected 60%%, got %d", got)
	}
}

func TestRecordClampsOversizedIdle(t *testing.T) {
	// More idle iterations than fit in one period (calibration drift);
	// the result clamps at 0 instead of going negative.
	m := cleanMeter(t)
	if got := m.Record(250); got != 0 {
		t.Fatalf("expected clamp to 0%%, got %d", got)
	}
}

func TestUncalibratedReportsUnknown(t *testing.T) {
	m, err := New(Config{ClockHz: 25_000_000, TimeStep: 100 * time.Microsecond})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	if m.Calibrated() {
		t.Fatalf("meter with no profile must start uncalibrated")
	}
	if got := m.Record(50); got != LoadUnknown {
		t.Fatalf("expected LoadUnknown, got %d", got)
	}
	if _, ok := m.Load(); ok {
		t.Fatalf("Load must report not-ok while uncalibrated")
	}
}

func TestSetCyclesPerIteration(t *testing.T) {
	m, err := New(Config{ClockHz: 25_000_000, TimeStep: 100 * time.Microsecond})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	m.SetCyclesPerIteration(0)
	if m.Calibrated() {
		t.Fatalf("zero must be ignored")
	}
	m.SetCyclesPerIteration(25)
	if !m.Calibrated() || m.CyclesPerIteration() != 25 {
		t.Fatalf("expected 25 installed, got %d", m.CyclesPerIteration())
	}
	if got := m.Record(40); got != 60 {
		t.Fatalf("expected 60%% after calibration, got %d", got)
	}
}

func TestOptimizationProfiles(t *testing.T) {
	for tag, want := range map[string]uint32{"O0": 28, "O1": 20, "O2": 23, "Os": 23, "O3": 23} {
		m, err := New(Config{
			Optimization: tag,
			ClockHz:      100_000_000,
			TimeStep:     100 * time.Microsecond,
		})
		if err != nil {
			t.Fatalf("%s: %v", tag, err)
		}
		if got := m.CyclesPerIteration(); got != want {
			t.Fatalf("%s: expected %d cycles per iteration, got %d", tag, want, got)
		}
	}
}

func TestUnknownProfileRejected(t *testing.T) {
	_, err := New(Config{Optimization: "O9", ClockHz: 100_000_000, TimeStep: 100 * time.Microsecond})
	if err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestOverrideBeatsProfile(t *testing.T) {
	m, err := New(Config{
		Optimization:       "O1",
		CyclesPerIteration: 42,
		ClockHz:            100_000_000,
		TimeStep:           100 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	if got := m.CyclesPerIteration(); got != 42 {
		t.Fatalf("user override must win over the profile table, got %d", got)
	}
}

func TestSamplesHistory(t *testing.T) {
	m := cleanMeter(t)
	for i := 0; i < 12; i++ {
		m.Record(uint32(i))
	}
	got := m.Samples()
	if len(got) != 10 {
		t.Fatalf("expected 10 retained samples, got %d", len(got))
	}
	// Oldest retained is idle=2 -> 98%.
	if got[0] != 98 || got[9] != 89 {
		t.Fatalf("unexpected history bounds: %v", got)
	}
}

func TestSustainedFullLoad(t *testing.T) {
	m := cleanMeter(t)
	for i := 0; i < 10; i++ {
		m.Record(0)
	}
	for _, s := range m.Samples() {
		if s != 100 {
			t.Fatalf("expected sustained 100%%, got %v", m.Samples())
		}
	}
	load, ok := m.Load()
	if !ok || load != 100 {
		t.Fatalf("expected latest 100%%, got %d ok=%v", load, ok)
	}
}

func TestBadPeriodRejected(t *testing.T) {
	if _, err := New(Config{CyclesPerIteration: 25, ClockHz: 100_000_000, TimeStep: time.Millisecond}); err == nil {
		t.Fatalf("expected period-range error")
	}
}
