package cpuload

import (
	"context"
	"errors"
	"runtime"

	"ticksched/internal/tick"
)

var ErrCalibrationAborted = errors.New("cpuload: calibration aborted")

// Calibrate measures the idle-iteration cost at startup instead of trusting
// a compile-time table: with the tick source already running, it aligns to a
// tick boundary, spins across exactly one full period counting iterations,
// and derives cycles-per-iteration from the known cycles-per-period. The
// result is installed on the meter and returned.
//
// Must run before the dispatcher owns the flag, since both consume ticks. The
// spin body mirrors the dispatcher's idle loop so the measured cost matches
// the loop being calibrated.
func (m *Meter) Calibrate(ctx context.Context, f *tick.Flag) (uint32, error) {
	// Align to a boundary so the counted window is one whole period.
	if err := waitTick(ctx, f); err != nil {
		return 0, err
	}

	var iterations uint32
	for !f.Consume() {
		iterations++
		if iterations%spinBatch == 0 {
			if ctx.Err() != nil {
				return 0, ErrCalibrationAborted
			}
		}
		runtime.Gosched()
	}
	if iterations == 0 {
		return 0, ErrCalibrationAborted
	}

	c := m.cyclesPerPeriod / iterations
	if c == 0 {
		c = 1
	}
	m.SetCyclesPerIteration(c)
	return c, nil
}

const spinBatch = 1024

func waitTick(ctx context.Context, f *tick.Flag) error {
	for i := uint32(1); !f.Consume(); i++ {
		if i%spinBatch == 0 && ctx.Err() != nil {
			return ErrCalibrationAborted
		}
		runtime.Gosched()
	}
	return nil
}
