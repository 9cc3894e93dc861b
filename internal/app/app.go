package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticksched/internal/archive"
	"ticksched/internal/config"
	"ticksched/internal/cpuload"
	"ticksched/internal/eventbus"
	"ticksched/internal/observability/diag"
	"ticksched/internal/profile"
	"ticksched/internal/runtime/supervisor"
	"ticksched/internal/sched"
	"ticksched/internal/services/report"
	"ticksched/internal/tick"
	logx "ticksched/pkg/logx"
)

// App wires the tick source, scheduler, meter, profiler and the surrounding
// services from one config file.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *archive.Store
	src   *tick.TimerSource
	meter *cpuload.Meter
	prof  *profile.Profiler
	sched *sched.Scheduler

	report  *report.Service
	metrics *diag.Metrics
	diag    *diag.Service

	selfCalibrate bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Archive (optional)
	ac, err := mapArchiveConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := archive.Open(ac, log.With(logx.String("comp", "archive")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("archive enabled", logx.String("path", ac.Path))
	}

	meter, err := cpuload.New(cpuload.Config{
		Optimization:       cfg.CPULoad.Optimization,
		CyclesPerIteration: cfg.CPULoad.CyclesPerIteration,
		ClockHz:            cfg.Scheduler.ClockHz,
		TimeStep:           cfg.TimeStep(),
		History:            cfg.CPULoad.History,
	})
	if err != nil {
		return nil, err
	}

	prof := profile.New(profile.Config{
		History:  cfg.Profiler.History,
		ClockOut: cfg.Profiler.ClockOut.Enabled,
		Detailed: cfg.Profiler.ClockOut.Detailed,
	}, nil)

	src := tick.NewTimerSource()

	schedSvc, err := sched.New(sched.Config{
		TimeStep:    cfg.TimeStep(),
		ClockHz:     cfg.Scheduler.ClockHz,
		Capacity:    cfg.Scheduler.Capacity,
		ISRPriority: cfg.Scheduler.ISRPriority,
		ISREnabled:  cfg.Scheduler.IsISREnabled(),
	}, src, meter, prof, log.With(logx.String("comp", "sched")), bus)
	if err != nil {
		return nil, err
	}

	if err := registerTasks(schedSvc, cfg.Tasks); err != nil {
		return nil, err
	}

	// Diagnostics (optional). Metrics are registered only when the server
	// can expose them.
	var (
		metrics *diag.Metrics
		rec     report.Recorder
	)
	dc, err := mapDiagConfig(cfg)
	if err != nil {
		return nil, err
	}
	if dc.Enabled {
		metrics, err = diag.NewMetrics("ticksched", nil)
		if err != nil {
			return nil, err
		}
		rec = metrics
	}
	diagSvc := diag.New(dc, metrics, log.With(logx.String("comp", "diag")))

	reportSvc := report.New(report.Config{
		Enabled:     cfg.Report.Enabled,
		Every:       cfg.Report.Every,
		HistorySize: cfg.Report.HistorySize,
	}, schedSvc.Snapshot, store, rec, log.With(logx.String("comp", "report")), bus)

	return &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		bus:           bus,
		store:         store,
		src:           src,
		meter:         meter,
		prof:          prof,
		sched:         schedSvc,
		report:        reportSvc,
		metrics:       metrics,
		diag:          diagSvc,
		selfCalibrate: cfg.CPULoad.SelfCalibrate,
	}, nil
}

// Scheduler exposes the dispatch core for inspection.
func (a *App) Scheduler() *sched.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapDiagConfig(cfg); err != nil {
			return err
		}
		if _, err := mapArchiveConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	// Self-calibration consumes ticks, so it must finish before the dispatch
	// loop starts competing for the flag.
	if a.selfCalibrate && !a.meter.Calibrated() {
		calCtx, cancel := context.WithTimeout(a.sup.Context(), 5*time.Second)
		c, err := a.meter.Calibrate(calCtx, a.sched.Flag())
		cancel()
		if err != nil {
			a.log.Warn("self-calibration failed; load reported as unknown", logx.Err(err))
		} else {
			a.log.Info("self-calibration done", logx.Uint64("cycles_per_iter", uint64(c)))
		}
	}

	a.sup.Go("sched.run", func(c context.Context) error {
		return a.sched.Run(c)
	})

	if a.report.Enabled() {
		if err := a.report.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	if a.diag.Enabled() {
		a.diag.Start(a.sup.Context())
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restartRequired := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restartRequired {
		a.log.Warn("scheduler timing or task set changed; restart required for changes to take effect")
	}

	// apply logging updates
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	// apply reporter updates (live): the service has no in-place apply, so a
	// changed report section swaps the instance.
	if reportChanged(oldCfg, newCfg) {
		a.report.Stop()
		a.report = report.New(report.Config{
			Enabled:     newCfg.Report.Enabled,
			Every:       newCfg.Report.Every,
			HistorySize: newCfg.Report.HistorySize,
		}, a.sched.Snapshot, a.store, a.recorder(), a.log.With(logx.String("comp", "report")), a.bus)
		if a.report.Enabled() {
			if err := a.report.Start(ctx); err != nil {
				a.log.Warn("reporter restart failed", logx.Err(err))
			} else {
				a.log.Info("reporter reconfigured")
			}
		} else {
			a.log.Info("reporter disabled via config")
		}
	}

	// apply diagnostics updates (live)
	if dc, err := mapDiagConfig(newCfg); err != nil {
		a.log.Warn("invalid diag config; keeping previous", logx.Err(err))
	} else {
		a.diag.Reconfigure(ctx, dc)
	}

	// Runtime calibration override is safe to swap between ticks.
	if newCfg.CPULoad.CyclesPerIteration != oldCfg.CPULoad.CyclesPerIteration {
		a.meter.SetCyclesPerIteration(newCfg.CPULoad.CyclesPerIteration)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) recorder() report.Recorder {
	if a.metrics == nil {
		return nil
	}
	return a.metrics
}

func reportChanged(oldCfg, newCfg *config.Config) bool {
	return oldCfg == nil || oldCfg.Report != newCfg.Report
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("report", 2*time.Second, func(context.Context) error { a.report.Stop(); return nil })
	step("diag", 2*time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("sched", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("archive", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapArchiveConfig(cfg *config.Config) (archive.Config, error) {
	if cfg == nil || !cfg.Archive.Enabled {
		return archive.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("archive.busy_timeout", cfg.Archive.BusyTimeout, time.Second)
	if err != nil {
		return archive.Config{}, err
	}
	return archive.Config{
		Enabled:     true,
		Path:        strings.TrimSpace(cfg.Archive.Path),
		BusyTimeout: busy,
	}, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	if cfg == nil {
		return diag.Config{}, nil
	}
	rt, err := config.ParseDurationOrDefault("diag.read_timeout", cfg.Diag.ReadTimeout, 5*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("diag.write_timeout", cfg.Diag.WriteTimeout, 30*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("diag.idle_timeout", cfg.Diag.IdleTimeout, time.Minute)
	if err != nil {
		return diag.Config{}, err
	}
	return diag.Config{
		Enabled:       cfg.Diag.Enabled,
		Addr:          cfg.Diag.Addr,
		Token:         cfg.Diag.Token,
		AllowInsecure: cfg.Diag.AllowInsecure,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
		IdleTimeout:   it,
	}, nil
}
