package cpuload

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticksched/internal/tick"
)

func TestCalibrateInstallsConstant(t *testing.T) {
	m, err := New(Config{ClockHz: 25_000_000, TimeStep: 100 * time.Microsecond})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}

	var f tick.Flag
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tk := time.NewTicker(time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				f.Raise()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := m.Calibrate(ctx, &f)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if c == 0 {
		t.Fatalf("calibration must install a nonzero constant")
	}
	if !m.Calibrated() || m.CyclesPerIteration() != c {
		t.Fatalf("expected %d installed, got %d", c, m.CyclesPerIteration())
	}
}

func TestCalibrateAbortsOnContext(t *testing.T) {
	m, err := New(Config{ClockHz: 25_000_000, TimeStep: 100 * time.Microsecond})
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var f tick.Flag
	if _, err := m.Calibrate(ctx, &f); !errors.Is(err, ErrCalibrationAborted) {
		t.Fatalf("expected ErrCalibrationAborted, got %v", err)
	}
	if m.Calibrated() {
		t.Fatalf("aborted calibration must not install a constant")
	}
}
