package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ticksched/internal/archive"
	"ticksched/internal/eventbus"
	"ticksched/internal/sched"
	logx "ticksched/pkg/logx"
)

type Config struct {
	Enabled bool
	// Every is an interval ("10s") or a five-field cron spec.
	Every       string
	HistorySize int
}

// Recorder receives each snapshot; the diagnostics exporter implements it.
type Recorder interface {
	Record(snap sched.Snapshot)
}

// Item is one retained report.
type Item struct {
	At   time.Time
	Snap sched.Snapshot
}

type Service struct {
	mu sync.Mutex

	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	store *archive.Store
	rec   Recorder

	snapshot func() sched.Snapshot

	parser cron.Parser
	c      *cron.Cron

	history []Item
	// lastSample keeps archived task samples monotonic: the profiler ring is
	// re-read whole each report, only entries newer than the watermark are
	// persisted.
	lastSample time.Time

	stopCh chan struct{}
	unsub  func()
	wg     sync.WaitGroup
}

func New(cfg Config, snapshot func() sched.Snapshot, store *archive.Store, rec Recorder, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		store:    store,
		rec:      rec,
		snapshot: snapshot,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return nil
	}
	if s.stopCh != nil {
		return errors.New("report: already started")
	}
	if s.snapshot == nil {
		return errors.New("report: snapshot source is required")
	}

	spec, err := s.resolveSpec()
	if err != nil {
		return err
	}

	s.stopCh = make(chan struct{})
	s.c = cron.New(cron.WithParser(s.parser))
	if _, err := s.c.AddFunc(spec, func() { s.runOnce(ctx) }); err != nil {
		s.stopCh = nil
		s.c = nil
		return fmt.Errorf("report: bad trigger spec %q: %w", spec, err)
	}
	s.c.Start()

	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(32)
		s.unsub = unsub
		s.wg.Add(1)
		go s.drainEvents(ctx, ch)
	}

	s.log.Info("reporter started", logx.String("every", spec))
	return nil
}

// resolveSpec turns an interval value into an @every spec; anything else is
// handed to the cron parser as-is.
func (s *Service) resolveSpec() (string, error) {
	raw := strings.TrimSpace(s.cfg.Every)
	if raw == "" {
		return "", errors.New("report: trigger spec is required")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("report: interval must be positive, got %q", raw)
		}
		return fmt.Sprintf("@every %s", d.String()), nil
	}
	if _, err := s.parser.Parse(raw); err != nil {
		return "", fmt.Errorf("report: bad trigger spec %q: %w", raw, err)
	}
	return raw, nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	c := s.c
	s.c = nil
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}
	if unsub != nil {
		unsub()
	}
	s.wg.Wait()
	s.log.Info("reporter stopped")
}

func (s *Service) drainEvents(ctx context.Context, ch <-chan eventbus.Event) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != eventbus.EventOverrun {
				continue
			}
			info, ok := ev.Data.(sched.OverrunInfo)
			if !ok {
				continue
			}
			if err := s.store.AppendOverrun(ctx, ev.Time, info.Tick, info.Missed); err != nil && !errors.Is(err, archive.ErrDisabled) {
				s.log.Warn("overrun archive failed", logx.Err(err))
			}
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	snap := s.snapshot()
	now := time.Now()

	s.log.Info("scheduler stats",
		logx.Uint64("ticks", snap.Ticks),
		logx.Uint64("dispatched", snap.Dispatched),
		logx.Uint64("overruns", snap.Overruns),
		logx.Uint64("missed_ticks", snap.MissedTicks),
		logx.Int("load_pct", snap.Load),
		logx.Bool("load_known", snap.LoadKnown),
		logx.Int("tasks", len(snap.Tasks)))

	if s.rec != nil {
		s.rec.Record(snap)
	}

	if err := s.store.AppendReport(ctx, archive.Report{
		At:         now,
		Ticks:      snap.Ticks,
		Dispatched: snap.Dispatched,
		Overruns:   snap.Overruns,
		Missed:     snap.MissedTicks,
		Load:       snap.Load,
	}); err != nil && !errors.Is(err, archive.ErrDisabled) {
		s.log.Warn("report archive failed", logx.Err(err))
	}

	s.archiveSamples(ctx, snap)

	item := Item{At: now, Snap: snap}
	s.mu.Lock()
	s.history = append(s.history, item)
	if s.cfg.HistorySize > 0 && len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.mu.Unlock()
}

func (s *Service) archiveSamples(ctx context.Context, snap sched.Snapshot) {
	s.mu.Lock()
	watermark := s.lastSample
	s.mu.Unlock()

	fresh := snap.Samples[:0:0]
	latest := watermark
	for _, sm := range snap.Samples {
		if sm.At.After(watermark) {
			fresh = append(fresh, sm)
			if sm.At.After(latest) {
				latest = sm.At
			}
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := s.store.AppendTaskSamples(ctx, fresh); err != nil && !errors.Is(err, archive.ErrDisabled) {
		s.log.Warn("task sample archive failed", logx.Err(err))
		return
	}
	s.mu.Lock()
	if latest.After(s.lastSample) {
		s.lastSample = latest
	}
	s.mu.Unlock()
}

// History returns the retained reports, oldest first.
func (s *Service) History() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.history))
	copy(out, s.history)
	return out
}
