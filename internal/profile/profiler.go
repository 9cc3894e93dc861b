package profile

import (
	"sync"
	"time"

	"ticksched/internal/ring"
)

// Pin is a digital debug output. Set must be a single bounded-latency write;
// implementations must not block, spin, or fail.
type Pin interface {
	Set(high bool)
}

// NopPin discards all writes. Used when clock-out is disabled.
type NopPin struct{}

func (NopPin) Set(bool) {}

type Config struct {
	// History is the duration ring capacity.
	History int
	// ClockOut enables the debug pin output.
	ClockOut bool
	// Detailed enables the task-identifying marker pulse pattern.
	// Only meaningful with ClockOut set.
	Detailed bool
}

const DefaultHistory = 100

// Sample is one recorded task invocation.
type Sample struct {
	Task     int // registration index
	Name     string
	Duration time.Duration
	At       time.Time
}

// Profiler timestamps task entry/exit and keeps the most recent samples.
// Invoked from the dispatch context; the sample ring is also read by the
// reporter and diagnostics goroutines, so pushes and snapshots take a
// mutex. Pin writes and timestamp capture stay outside the lock.
type Profiler struct {
	pin      Pin
	clockOut bool
	detailed bool

	mu      sync.Mutex
	samples *ring.Buffer[Sample]
	now     func() time.Time
}

func New(cfg Config, pin Pin) *Profiler {
	history := cfg.History
	if history <= 0 {
		history = DefaultHistory
	}
	if pin == nil {
		pin = NopPin{}
	}
	return &Profiler{
		pin:      pin,
		clockOut: cfg.ClockOut,
		detailed: cfg.Detailed,
		samples:  ring.New[Sample](history),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source. Test hook.
func (p *Profiler) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Invoke runs fn bracketed by entry/exit timestamps and pin writes, records
// the duration, and returns it. The marker pulses precede the entry
// timestamp so they never inflate the measured body.
func (p *Profiler) Invoke(task int, name string, fn func()) time.Duration {
	if p.clockOut {
		if p.detailed {
			for i := 0; i <= task; i++ {
				p.pin.Set(true)
				p.pin.Set(false)
			}
		}
		p.pin.Set(true)
	}

	start := p.now()
	fn()
	end := p.now()

	if p.clockOut {
		p.pin.Set(false)
	}

	d := end.Sub(start)
	p.mu.Lock()
	p.samples.Push(Sample{Task: task, Name: name, Duration: d, At: start})
	p.mu.Unlock()
	return d
}

// Samples returns the recorded history, oldest first.
func (p *Profiler) Samples() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples.Snapshot()
}

// Last returns the most recent sample.
func (p *Profiler) Last() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples.Last()
}
