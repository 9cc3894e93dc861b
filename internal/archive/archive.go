package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ticksched/internal/profile"
	logx "ticksched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("archive disabled")

type Config struct {
	Enabled     bool
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Report is one periodic statistics row.
type Report struct {
	At         time.Time
	Ticks      uint64
	Dispatched uint64
	Overruns   uint64
	Missed     uint64
	// Load is the percentage at report time, -1 when unknown.
	Load int
}

// Store wraps the SQLite database. A nil *Store is safe to call; every
// method reports ErrDisabled, so callers don't need an enabled check at
// each site.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the archive. Returns (nil, nil) when disabled.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("archive: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) AppendReport(ctx context.Context, r Report) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(at, ticks, dispatched, overruns, missed, load)
		 VALUES(?,?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.Ticks, r.Dispatched, r.Overruns, r.Missed, r.Load,
	)
	return err
}

func (s *Store) AppendTaskSamples(ctx context.Context, samples []profile.Sample) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO task_samples(at, task_idx, name, duration_ns) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, sm := range samples {
		if _, err := stmt.ExecContext(ctx,
			sm.At.Format(time.RFC3339Nano), sm.Task, sm.Name, sm.Duration.Nanoseconds()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AppendOverrun(ctx context.Context, at time.Time, tickNo, missed uint64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overruns(at, tick, missed) VALUES(?,?,?)`,
		at.Format(time.RFC3339Nano), tickNo, missed,
	)
	return err
}

// RecentReports returns up to n report rows, newest first.
func (s *Store) RecentReports(ctx context.Context, n int) ([]Report, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, ticks, dispatched, overruns, missed, load
		 FROM reports ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Report
	for rows.Next() {
		var r Report
		var at string
		if err := rows.Scan(&at, &r.Ticks, &r.Dispatched, &r.Overruns, &r.Missed, &r.Load); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			r.At = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TaskSampleCount reports the number of archived task samples. Used by
// diagnostics and tests.
func (s *Store) TaskSampleCount(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_samples`).Scan(&n)
	return n, err
}
