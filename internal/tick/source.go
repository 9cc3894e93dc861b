package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Config mirrors the timer options a target exposes: the schedule time step,
// the instruction clock it is derived from, and the interrupt wiring.
type Config struct {
	TimeStep time.Duration
	ClockHz  uint64

	// ISRPriority is recorded for hardware targets (0..7 on the reference
	// parts); hosted sources carry it for diagnostics only.
	ISRPriority int
	// ISREnabled arms the interrupt on Start. A disabled interrupt means no
	// raises will ever arrive, so Start refuses rather than hang the
	// dispatcher.
	ISREnabled bool
}

var (
	ErrNotConfigured = errors.New("tick: source not configured")
	ErrStarted       = errors.New("tick: source already started")
	ErrISRDisabled   = errors.New("tick: interrupt disabled in configuration")
)

// Source is the contract between the dispatcher and its timer.
//
// Configure programs the period and must reject out-of-range requests.
// Start arms the source; from then on it calls raise once per period from
// its own context until Stop or context cancellation. raise must be treated
// as interrupt context: bounded work only.
type Source interface {
	Configure(cfg Config) error
	Start(ctx context.Context, raise func()) error
	Stop()
}

// TimerSource is the hosted implementation: a time.Ticker goroutine plays
// the role of the hardware timer interrupt.
type TimerSource struct {
	mu     sync.Mutex
	cfg    Config
	reload uint16
	ready  bool

	stop chan struct{}
	done chan struct{}
}

func NewTimerSource() *TimerSource { return &TimerSource{} }

func (t *TimerSource) Configure(cfg Config) error {
	reload, err := Reload(cfg.ClockHz, cfg.TimeStep)
	if err != nil {
		return err
	}
	if cfg.ISRPriority < 0 || cfg.ISRPriority > 7 {
		return fmt.Errorf("tick: isr priority %d out of range 0..7", cfg.ISRPriority)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return ErrStarted
	}
	t.cfg = cfg
	t.reload = reload
	t.ready = true
	return nil
}

// Reload returns the derived period register value.
func (t *TimerSource) Reload() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reload
}

func (t *TimerSource) Start(ctx context.Context, raise func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return ErrNotConfigured
	}
	if !t.cfg.ISREnabled {
		return ErrISRDisabled
	}
	if t.stop != nil {
		return ErrStarted
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	step := t.cfg.TimeStep
	stop, done := t.stop, t.done
	go func() {
		defer close(done)
		tk := time.NewTicker(step)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-tk.C:
				raise()
			}
		}
	}()
	return nil
}

func (t *TimerSource) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop = nil
	t.done = nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// ManualSource is the test implementation: ticks arrive only when Fire is
// called, giving tests full control over the tick timeline.
type ManualSource struct {
	mu    sync.Mutex
	cfg   Config
	ready bool
	raise func()
}

func NewManualSource() *ManualSource { return &ManualSource{} }

func (m *ManualSource) Configure(cfg Config) error {
	if _, err := Reload(cfg.ClockHz, cfg.TimeStep); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.ready = true
	return nil
}

func (m *ManualSource) Start(_ context.Context, raise func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotConfigured
	}
	m.raise = raise
	return nil
}

func (m *ManualSource) Stop() {
	m.mu.Lock()
	m.raise = nil
	m.mu.Unlock()
}

// Fire delivers one tick, as the timer interrupt would.
func (m *ManualSource) Fire() {
	m.mu.Lock()
	raise := m.raise
	m.mu.Unlock()
	if raise != nil {
		raise()
	}
}
