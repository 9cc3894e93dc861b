package profile

import (
	"testing"
	"time"
)

// recordPin captures every Set call for pulse-sequence assertions.
type recordPin struct {
	writes []bool
}

func (p *recordPin) Set(high bool) { p.writes = append(p.writes, high) }

// stepClock returns successive instants 1ms apart, so each Invoke measures
// exactly one millisecond.
func stepClock() func() time.Time {
	base := time.Unix(0, 0)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func TestInvokeRecordsDuration(t *testing.T) {
	p := New(Config{History: 4}, nil)
	p.SetClock(stepClock())

	ran := false
	d := p.Invoke(0, "ctl", func() { ran = true })
	if !ran {
		t.Fatalf("task body did not run")
	}
	if d != time.Millisecond {
		t.Fatalf("expected 1ms, got %v", d)
	}
	last, ok := p.Last()
	if !ok || last.Name != "ctl" || last.Duration != time.Millisecond || last.Task != 0 {
		t.Fatalf("unexpected sample: %+v ok=%v", last, ok)
	}
}

func TestPlainPulse(t *testing.T) {
	pin := &recordPin{}
	p := New(Config{ClockOut: true}, pin)
	p.Invoke(3, "t", func() {})

	want := []bool{true, false}
	if len(pin.writes) != len(want) {
		t.Fatalf("expected %v, got %v", want, pin.writes)
	}
	for i := range want {
		if pin.writes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, pin.writes)
		}
	}
}

func TestDetailedMarkerPulses(t *testing.T) {
	pin := &recordPin{}
	p := New(Config{ClockOut: true, Detailed: true}, pin)
	p.Invoke(2, "t", func() {})

	// Task index 2: three narrow marker pulses, then the body level.
	want := []bool{true, false, true, false, true, false, true, false}
	if len(pin.writes) != len(want) {
		t.Fatalf("expected %d writes, got %d: %v", len(want), len(pin.writes), pin.writes)
	}
	for i := range want {
		if pin.writes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, pin.writes)
		}
	}
}

func TestClockOutDisabledLeavesPinIdle(t *testing.T) {
	pin := &recordPin{}
	p := New(Config{}, pin)
	p.Invoke(0, "t", func() {})
	if len(pin.writes) != 0 {
		t.Fatalf("pin must stay idle when clock-out is off, got %v", pin.writes)
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	p := New(Config{History: 3}, nil)
	p.SetClock(stepClock())

	names := []string{"a", "b", "c", "d", "e"}
	for i, n := range names {
		p.Invoke(i, n, func() {})
	}
	got := p.Samples()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained samples, got %d", len(got))
	}
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("expected %v oldest-first, got %+v", want, got)
		}
	}
	if !got[0].At.Before(got[2].At) {
		t.Fatalf("expected ascending timestamps")
	}
}
