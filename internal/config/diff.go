package config

import (
	"reflect"
	"strings"

	logx "ticksched/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes the diag token),
// and (3) whether the change touches tick timing, which cannot be applied
// to a running scheduler and needs a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)
	restart := false

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		restart = true
		attrs = append(attrs,
			logx.String("scheduler.time_step", strings.TrimSpace(newCfg.Scheduler.TimeStep)),
			logx.Uint64("scheduler.clock_hz", newCfg.Scheduler.ClockHz),
			logx.Int("scheduler.capacity", newCfg.Scheduler.Capacity),
		)
	}
	if !reflect.DeepEqual(oldCfg.CPULoad, newCfg.CPULoad) {
		changed = append(changed, "cpu_load")
		attrs = append(attrs,
			logx.String("cpu_load.optimization", newCfg.CPULoad.Optimization),
			logx.Uint64("cpu_load.cycles_per_iteration", uint64(newCfg.CPULoad.CyclesPerIteration)),
			logx.Bool("cpu_load.self_calibrate", newCfg.CPULoad.SelfCalibrate),
		)
	}
	if !reflect.DeepEqual(oldCfg.Profiler, newCfg.Profiler) {
		changed = append(changed, "profiler")
		restart = true
		attrs = append(attrs,
			logx.Bool("profiler.clockout", newCfg.Profiler.ClockOut.Enabled),
			logx.Bool("profiler.detailed", newCfg.Profiler.ClockOut.Detailed),
		)
	}
	if !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
		restart = true
		attrs = append(attrs, logx.Int("tasks.count", len(newCfg.Tasks)))
	}
	if !reflect.DeepEqual(oldCfg.Report, newCfg.Report) {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newCfg.Report.Enabled),
			logx.String("report.every", newCfg.Report.Every),
		)
	}
	if !reflect.DeepEqual(oldCfg.Archive, newCfg.Archive) {
		changed = append(changed, "archive")
		attrs = append(attrs, logx.Bool("archive.enabled", newCfg.Archive.Enabled))
	}
	if oldCfg.Diag.Enabled != newCfg.Diag.Enabled ||
		strings.TrimSpace(oldCfg.Diag.Addr) != strings.TrimSpace(newCfg.Diag.Addr) ||
		oldCfg.Diag.AllowInsecure != newCfg.Diag.AllowInsecure ||
		(oldCfg.Diag.Token != newCfg.Diag.Token) {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newCfg.Diag.Addr)),
			logx.Bool("diag.token_set", strings.TrimSpace(newCfg.Diag.Token) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	return changed, attrs, restart
}
