package tick

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CounterWidth is the bit width of the hardware timer's period register.
// A requested period that does not fit is a configuration error, never
// silently clamped.
const CounterWidth = 16

// MaxReload is the largest reload value the period register can hold.
const MaxReload = 1<<CounterWidth - 1

var (
	ErrBadTimeStep = errors.New("tick: time step must be positive")
	ErrBadClock    = errors.New("tick: clock frequency must be positive")
	ErrPeriodRange = errors.New("tick: period exceeds timer counter range")
)

// Reload derives the timer reload (period register) value for one tick of
// the given time step at the given instruction clock.
//
// reload = round(clockHz * step). For a 100 MHz clock and a 100 µs step this
// yields 10000 counter increments per tick.
func Reload(clockHz uint64, step time.Duration) (uint16, error) {
	if step <= 0 {
		return 0, ErrBadTimeStep
	}
	if clockHz == 0 {
		return 0, ErrBadClock
	}
	counts := float64(clockHz) * step.Seconds()
	v := math.Round(counts)
	if v < 1 {
		return 0, fmt.Errorf("tick: step %v below counter resolution at %d Hz: %w", step, clockHz, ErrBadTimeStep)
	}
	if v > MaxReload {
		return 0, fmt.Errorf("tick: step %v at %d Hz needs %0.f counts (max %d): %w",
			step, clockHz, v, MaxReload, ErrPeriodRange)
	}
	return uint16(v), nil
}

// CyclesPerPeriod returns the instruction cycles elapsing in one tick.
// This equals the reload value: one counter increment per cycle.
func CyclesPerPeriod(clockHz uint64, step time.Duration) (uint32, error) {
	reload, err := Reload(clockHz, step)
	if err != nil {
		return 0, err
	}
	return uint32(reload), nil
}
