package config

import (
	"fmt"
	"strings"
	"time"

	"ticksched/internal/cpuload"
	"ticksched/internal/tick"
)

// Config is the daemon's configuration surface.
//
// All durations are Go duration strings (e.g. "100us", "10s", "1m").
// Unknown fields are rejected: the file format follows the firmware's
// task-manager options closely enough that a typo'd knob silently ignored
// would be worse than a parse error.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	CPULoad   CPULoadConfig   `json:"cpu_load"`
	Profiler  ProfilerConfig  `json:"profiler,omitempty"`
	Tasks     []TaskConfig    `json:"tasks,omitempty"`
	Report    ReportConfig    `json:"report,omitempty"`
	Archive   ArchiveConfig   `json:"archive,omitempty"`
	Diag      DiagConfig      `json:"diag,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

// SchedulerConfig carries the tick timing and registry options.
//
// TimeStep and ClockHz together derive the timer reload value; a combination
// that does not fit the counter is rejected at startup, never clamped.
type SchedulerConfig struct {
	// TimeStep is the tick period (e.g. "100us").
	TimeStep string `json:"time_step"`
	// ClockHz is the instruction clock frequency the timer counts.
	ClockHz uint64 `json:"clock_hz"`
	// Capacity bounds the task registry. Default 16.
	Capacity int `json:"capacity,omitempty"`

	ISRPriority int `json:"isr_priority,omitempty"`
	// ISREnabled arms the tick interrupt. Pointer so "omitted" defaults to
	// true while an explicit false is honored (and refuses to start).
	ISREnabled *bool `json:"isr_enabled,omitempty"`
}

// CPULoadConfig selects the idle-loop calibration.
//
// Priority: SelfCalibrate > CyclesPerIteration > Optimization. With none
// set the meter runs uncalibrated and reports load as unknown.
type CPULoadConfig struct {
	// Optimization names a measured profile: O0, O1, O2, Os, O3.
	Optimization string `json:"optimization,omitempty"`
	// CyclesPerIteration is a user-measured override.
	CyclesPerIteration uint32 `json:"cycles_per_iteration,omitempty"`
	// SelfCalibrate measures the constant at startup against the live tick
	// source instead of trusting a table.
	SelfCalibrate bool `json:"self_calibrate,omitempty"`
	// History is the load-sample ring length. Default 100.
	History int `json:"history,omitempty"`
}

type ProfilerConfig struct {
	// History is the execution-time ring length. Default 100.
	History  int            `json:"history,omitempty"`
	ClockOut ClockOutConfig `json:"clockout,omitempty"`
}

// ClockOutConfig controls the debug-pin task boundary output.
type ClockOutConfig struct {
	Enabled bool `json:"enabled"`
	// Detailed prefixes each task with its identifying marker pulses.
	Detailed bool `json:"detailed,omitempty"`
}

// TaskConfig declares a synthetic task for the hosted harness: it busy-waits
// for the given duration each invocation, standing in for a control task so
// a schedule and its budget can be validated before flashing.
type TaskConfig struct {
	Name        string `json:"name"`
	PeriodTicks uint32 `json:"period_ticks"`
	// Busy is the simulated execution time per invocation (e.g. "20us").
	Busy string `json:"busy,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

// ReportConfig controls the periodic statistics reporter.
type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// Every is an interval ("10s") or a cron spec ("*/5 * * * *").
	Every string `json:"every,omitempty"`
	// HistorySize bounds the in-memory report history. Default 50.
	HistorySize int `json:"history_size,omitempty"`
}

// ArchiveConfig controls the SQLite statistics archive.
type ArchiveConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DiagConfig controls the diagnostics HTTP server (pprof + metrics).
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// Defaults applied by Validate.
const (
	DefaultCapacity    = 16
	DefaultHistory     = 100
	DefaultReportEvery = "10s"
)

// Validate checks cross-field consistency and fills defaults. It is also
// installed as the ConfigManager validator so a bad hot-reload is rejected
// before publish.
func (c *Config) Validate() error {
	step, err := ParseDurationField("scheduler.time_step", c.Scheduler.TimeStep)
	if err != nil {
		return err
	}
	if step <= 0 {
		return fmt.Errorf("scheduler.time_step: required")
	}
	if c.Scheduler.ClockHz == 0 {
		return fmt.Errorf("scheduler.clock_hz: required")
	}
	if _, err := tick.Reload(c.Scheduler.ClockHz, step); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if c.Scheduler.Capacity == 0 {
		c.Scheduler.Capacity = DefaultCapacity
	}
	if c.Scheduler.Capacity < 1 {
		return fmt.Errorf("scheduler.capacity: must be at least 1")
	}
	if p := c.Scheduler.ISRPriority; p < 0 || p > 7 {
		return fmt.Errorf("scheduler.isr_priority: %d out of range 0..7", p)
	}

	if tag := strings.TrimSpace(c.CPULoad.Optimization); tag != "" {
		if _, ok := cpuload.CyclesForProfile(tag); !ok {
			return fmt.Errorf("cpu_load.optimization: unknown profile %q", tag)
		}
	}
	if c.CPULoad.History == 0 {
		c.CPULoad.History = DefaultHistory
	}
	if c.Profiler.History == 0 {
		c.Profiler.History = DefaultHistory
	}

	if len(c.Tasks) > c.Scheduler.Capacity {
		return fmt.Errorf("tasks: %d declared, registry capacity is %d", len(c.Tasks), c.Scheduler.Capacity)
	}
	seen := map[string]bool{}
	for i, t := range c.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tasks[%d].name: required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tasks[%d].name: duplicate %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.PeriodTicks == 0 {
			return fmt.Errorf("tasks[%d].period_ticks: must be at least 1", i)
		}
		if _, err := ParseDurationField(fmt.Sprintf("tasks[%d].busy", i), t.Busy); err != nil {
			return err
		}
	}

	if c.Report.Enabled && strings.TrimSpace(c.Report.Every) == "" {
		c.Report.Every = DefaultReportEvery
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Path) == "" {
		return fmt.Errorf("archive.path: required when archive is enabled")
	}
	return nil
}

// TimeStep returns the parsed tick period. Call after Validate.
func (c *Config) TimeStep() time.Duration {
	d, _ := ParseDurationField("scheduler.time_step", c.Scheduler.TimeStep)
	return d
}

// IsISREnabled resolves the tri-state flag (default true).
func (c *SchedulerConfig) IsISREnabled() bool {
	return c.ISREnabled == nil || *c.ISREnabled
}

// IsEnabled resolves a task's tri-state flag (default true).
func (t *TaskConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}
