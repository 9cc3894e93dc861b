package diag

import (
	"errors"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"ticksched/internal/sched"
)

// Metrics adapts scheduler snapshots to Prometheus collectors. It implements
// report.Recorder; Record is driven by the reporter's cadence, not the tick.
type Metrics struct {
	loadPercent prom.Gauge
	ticks       prom.Gauge
	dispatched  prom.Gauge
	overruns    prom.Gauge
	missedTicks prom.Gauge
	taskRuns    *prom.GaugeVec
	taskSeconds *prom.HistogramVec

	mu        sync.Mutex
	watermark time.Time
}

// NewMetrics creates and registers the collectors.
func NewMetrics(namespace string, reg prom.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "ticksched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	m := &Metrics{
		loadPercent: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_load_percent",
			Help:      "Latest CPU load percentage (-1 while the meter is uncalibrated).",
		}),
		ticks: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "ticks",
			Help:      "Ticks serviced by the dispatch loop.",
		}),
		dispatched: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatched_tasks",
			Help:      "Total task invocations.",
		}),
		overruns: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "overruns",
			Help:      "Tick boundaries reached while dispatch was still running.",
		}),
		missedTicks: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "missed_ticks",
			Help:      "Timer raises that found the pending flag already set.",
		}),
		taskRuns: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "task_runs",
			Help:      "Invocations per task.",
		}, []string{"task"}),
		taskSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prom.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"task"}),
	}

	var err error
	if m.loadPercent, err = registerCollector(reg, m.loadPercent); err != nil {
		return nil, err
	}
	if m.ticks, err = registerCollector(reg, m.ticks); err != nil {
		return nil, err
	}
	if m.dispatched, err = registerCollector(reg, m.dispatched); err != nil {
		return nil, err
	}
	if m.overruns, err = registerCollector(reg, m.overruns); err != nil {
		return nil, err
	}
	if m.missedTicks, err = registerCollector(reg, m.missedTicks); err != nil {
		return nil, err
	}
	if m.taskRuns, err = registerCollector(reg, m.taskRuns); err != nil {
		return nil, err
	}
	if m.taskSeconds, err = registerCollector(reg, m.taskSeconds); err != nil {
		return nil, err
	}
	return m, nil
}

// Record folds one snapshot into the collectors. Duration samples older than
// the previous snapshot are skipped so histogram observations stay unique.
func (m *Metrics) Record(snap sched.Snapshot) {
	if m == nil {
		return
	}
	m.loadPercent.Set(float64(snap.Load))
	m.ticks.Set(float64(snap.Ticks))
	m.dispatched.Set(float64(snap.Dispatched))
	m.overruns.Set(float64(snap.Overruns))
	m.missedTicks.Set(float64(snap.MissedTicks))

	for _, t := range snap.Tasks {
		m.taskRuns.WithLabelValues(t.Name).Set(float64(t.Runs))
	}

	m.mu.Lock()
	watermark := m.watermark
	latest := watermark
	for _, sm := range snap.Samples {
		if !sm.At.After(watermark) {
			continue
		}
		m.taskSeconds.WithLabelValues(sm.Name).Observe(sm.Duration.Seconds())
		if sm.At.After(latest) {
			latest = sm.At
		}
	}
	m.watermark = latest
	m.mu.Unlock()
}

// registerCollector registers c, reusing the already-registered collector on
// duplicate registration so hot restarts don't fail.
func registerCollector[C prom.Collector](reg prom.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
