package cpuload

import (
	"fmt"
	"sync"
	"time"

	"ticksched/internal/ring"
	"ticksched/internal/tick"
)

// LoadUnknown is reported while the meter has no calibration constant.
// It is also what lands in the sample history for uncalibrated ticks, so a
// reader can tell "no data" from "0% load".
const LoadUnknown = -1

// Cycles measured for one idle-loop iteration per compiler optimization
// level on the reference parts. Re-measure after a compiler upgrade; the
// "user" case must supply its own value.
var profiles = map[string]uint32{
	"O0": 28,
	"O1": 20,
	"O2": 23,
	"Os": 23,
	"O3": 23,
}

// CyclesForProfile looks up the idle-iteration cost for a named
// optimization-level tag.
func CyclesForProfile(tag string) (uint32, bool) {
	c, ok := profiles[tag]
	return c, ok
}

type Config struct {
	// Optimization names a calibration profile (O0, O1, O2, Os, O3).
	Optimization string
	// CyclesPerIteration is a user-measured override; when nonzero it wins
	// over Optimization.
	CyclesPerIteration uint32

	ClockHz  uint64
	TimeStep time.Duration

	// History is the load-sample ring capacity.
	History int
}

const DefaultHistory = 100

// Meter converts idle-iteration counts into load percentages.
//
// Fed by the dispatch context; the sample history is also read by the
// reporter and diagnostics goroutines, so the mutable state sits behind a
// mutex. The lock is held only around ring and scale access, never across
// a spin loop, so it cannot distort what is being measured.
type Meter struct {
	mu              sync.Mutex
	cyclesPerIter   uint32
	cyclesPerPeriod uint32
	scaleQ16        uint64 // cyclesPerIter * 100 << 16 / cyclesPerPeriod

	samples *ring.Buffer[int]
}

func New(cfg Config) (*Meter, error) {
	cpp, err := tick.CyclesPerPeriod(cfg.ClockHz, cfg.TimeStep)
	if err != nil {
		return nil, err
	}

	history := cfg.History
	if history <= 0 {
		history = DefaultHistory
	}

	m := &Meter{
		cyclesPerPeriod: cpp,
		samples:         ring.New[int](history),
	}

	switch {
	case cfg.CyclesPerIteration != 0:
		m.install(cfg.CyclesPerIteration)
	case cfg.Optimization != "":
		c, ok := CyclesForProfile(cfg.Optimization)
		if !ok {
			return nil, fmt.Errorf("cpuload: unknown optimization profile %q", cfg.Optimization)
		}
		m.install(c)
	}
	// Neither set: meter starts uncalibrated and reports LoadUnknown until
	// SetCyclesPerIteration or Calibrate installs a constant.
	return m, nil
}

func (m *Meter) install(cyclesPerIter uint32) {
	m.cyclesPerIter = cyclesPerIter
	m.scaleQ16 = (uint64(cyclesPerIter) * 100 << 16) / uint64(m.cyclesPerPeriod)
}

// Calibrated reports whether a cycles-per-iteration constant is installed.
func (m *Meter) Calibrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cyclesPerIter != 0
}

// CyclesPerIteration returns the installed calibration constant (0 when
// uncalibrated).
func (m *Meter) CyclesPerIteration() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cyclesPerIter
}

// SetCyclesPerIteration installs a measured calibration constant. Zero is
// ignored: it would turn the meter into a divide-by-zero dressed as 100%.
func (m *Meter) SetCyclesPerIteration(c uint32) {
	if c == 0 {
		return
	}
	m.mu.Lock()
	m.install(c)
	m.mu.Unlock()
}

// Record folds one tick's idle count into the sample history and returns the
// computed percentage, or LoadUnknown when uncalibrated.
func (m *Meter) Record(idle uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	load := m.compute(idle)
	m.samples.Push(load)
	return load
}

func (m *Meter) compute(idle uint32) int {
	if m.cyclesPerIter == 0 {
		return LoadUnknown
	}
	idleQ := (uint64(idle) * m.scaleQ16) >> 16
	if idleQ >= 100 {
		return 0
	}
	return 100 - int(idleQ)
}

// Load returns the most recent sample. ok is false while the meter is
// uncalibrated or has recorded nothing yet.
func (m *Meter) Load() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.samples.Last()
	if !ok || last == LoadUnknown {
		return LoadUnknown, false
	}
	return last, true
}

// Samples returns the recorded history, oldest first.
func (m *Meter) Samples() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples.Snapshot()
}
