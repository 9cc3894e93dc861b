package diag

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"ticksched/internal/profile"
	"ticksched/internal/sched"
)

func gatherValue(t *testing.T, reg *prom.Registry, name string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				return g.GetValue(), true
			}
		}
	}
	return 0, false
}

func TestRecordExportsSnapshot(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetrics("test", reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.Record(sched.Snapshot{
		Ticks:      500,
		Dispatched: 42,
		Overruns:   3,
		Load:       67,
		LoadKnown:  true,
		Tasks:      []sched.TaskInfo{{Name: "ctl", Runs: 10}},
	})

	if v, ok := gatherValue(t, reg, "test_cpu_load_percent"); !ok || v != 67 {
		t.Fatalf("expected load 67, got %v ok=%v", v, ok)
	}
	if v, ok := gatherValue(t, reg, "test_ticks"); !ok || v != 500 {
		t.Fatalf("expected 500 ticks, got %v ok=%v", v, ok)
	}
	if v, ok := gatherValue(t, reg, "test_overruns"); !ok || v != 3 {
		t.Fatalf("expected 3 overruns, got %v ok=%v", v, ok)
	}
}

func TestRecordSkipsStaleSamples(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := NewMetrics("test", reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	base := time.Now()
	samples := []profile.Sample{
		{Name: "ctl", Duration: time.Millisecond, At: base},
		{Name: "ctl", Duration: time.Millisecond, At: base.Add(time.Second)},
	}
	m.Record(sched.Snapshot{Samples: samples})
	// Same ring contents re-read on the next report: nothing new to observe.
	m.Record(sched.Snapshot{Samples: samples})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "test_task_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if h := metric.GetHistogram(); h != nil {
				if got := h.GetSampleCount(); got != 2 {
					t.Fatalf("expected 2 observations, got %d", got)
				}
				return
			}
		}
	}
	t.Fatalf("histogram not found")
}

func TestDuplicateRegistrationReused(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewMetrics("test", reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewMetrics("test", reg); err != nil {
		t.Fatalf("second: %v", err)
	}
}
