package app

import (
	"fmt"
	"time"

	"ticksched/internal/config"
	"ticksched/internal/sched"
)

// registerTasks installs the configured synthetic tasks. Each one busy-waits
// for its configured duration per invocation so a schedule and its CPU budget
// can be exercised on a host before committing to real task bodies.
func registerTasks(s *sched.Scheduler, tasks []config.TaskConfig) error {
	for i, t := range tasks {
		busy, err := config.ParseDurationField(fmt.Sprintf("tasks[%d].busy", i), t.Busy)
		if err != nil {
			return err
		}
		if err := s.Register(t.Name, t.PeriodTicks, busyTask(busy), t.IsEnabled()); err != nil {
			return fmt.Errorf("tasks[%d] %q: %w", i, t.Name, err)
		}
	}
	return nil
}

// busyTask returns a task body that spins for d. Spinning rather than
// sleeping keeps the load meter honest: sleeping would hand the CPU back and
// count as idle.
func busyTask(d time.Duration) sched.TaskFunc {
	if d <= 0 {
		return func() {}
	}
	return func() {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
		}
	}
}
