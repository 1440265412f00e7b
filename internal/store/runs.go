// Package store persists scan runs: the records, timers and errors a discovery pass
// collected, and the events a crawler dispatched while replaying them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"domscout/internal/dom"
	"domscout/internal/engine"
	"domscout/internal/logging"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one discovery pass over a target.
type Run struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	Host       string     `json:"host"` // static or live
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Records    int        `json:"records"`
	Timers     int        `json:"timers"`
	Errors     int        `json:"errors"`
	Dispatches int        `json:"dispatches"`
}

// Dispatch is one replayed event.
type Dispatch struct {
	Selector  string    `json:"selector"`
	EventType string    `json:"event_type"`
	OK        bool      `json:"ok"`
	At        time.Time `json:"at"`
}

// RunStore is a SQLite-backed run log.
type RunStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	now    func() time.Time
}

// Open opens or creates the run database at path.
func Open(path string) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &RunStore{db: db, dbPath: path, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure run schema: %w", err)
	}
	logging.Store("run store opened at %s", path)
	return s, nil
}

func (s *RunStore) ensureSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		target      TEXT NOT NULL,
		host        TEXT NOT NULL CHECK (host IN ('static','live')),
		started_at  INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS records (
		id          INTEGER PRIMARY KEY,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tag_name    TEXT NOT NULL,
		node_type   INTEGER NOT NULL,
		selector    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		source      TEXT NOT NULL,
		use_capture INTEGER,
		handler     TEXT,
		text        TEXT,
		UNIQUE(run_id, tag_name, selector, event_type, source)
	);
	CREATE TABLE IF NOT EXISTS timers (
		id       INTEGER PRIMARY KEY,
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		kind     TEXT NOT NULL,
		delay_ms INTEGER NOT NULL,
		callable TEXT
	);
	CREATE TABLE IF NOT EXISTS page_errors (
		id      INTEGER PRIMARY KEY,
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		message TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dispatches (
		id         INTEGER PRIMARY KEY,
		run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		selector   TEXT NOT NULL,
		event_type TEXT NOT NULL,
		ok         INTEGER NOT NULL,
		at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_run    ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_timers_run     ON timers(run_id);
	CREATE INDEX IF NOT EXISTS idx_errors_run     ON page_errors(run_id);
	CREATE INDEX IF NOT EXISTS idx_dispatches_run ON dispatches(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started   ON runs(started_at);
	`)
	return err
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// BeginRun starts a run for target on host ("static" or "live").
func (s *RunStore) BeginRun(ctx context.Context, target, host string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := Run{ID: uuid.NewString(), Target: target, Host: host, StartedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, target, host, started_at) VALUES(?,?,?,?)`,
		run.ID, run.Target, run.Host, run.StartedAt.UnixMilli())
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	logging.Store("run %s started for %s (%s)", run.ID, target, host)
	return run, nil
}

// FinishRun stamps the end time of a run.
func (s *RunStore) FinishRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, s.now().UTC().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// AddRecords stores interaction records. Records already stored for the run under the
// same duplicate key are ignored.
func (s *RunStore) AddRecords(ctx context.Context, runID string, records []engine.Record) error {
	return s.batch(ctx, `INSERT OR IGNORE INTO records
		(run_id, tag_name, node_type, selector, event_type, source, use_capture, handler, text)
		VALUES(?,?,?,?,?,?,?,?,?)`, len(records), func(stmt *sql.Stmt, i int) error {
		r := records[i]
		var capture sql.NullBool
		if r.Capture != nil {
			capture = sql.NullBool{Bool: *r.Capture, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, runID, r.TagName, int(r.NodeKind), r.Selector, r.EventType,
			string(r.Source), capture, r.Handler, r.Text)
		return err
	})
}

// AddTimers stores timer records.
func (s *RunStore) AddTimers(ctx context.Context, runID string, timers []engine.TimerRecord) error {
	return s.batch(ctx, `INSERT INTO timers(run_id, kind, delay_ms, callable) VALUES(?,?,?,?)`,
		len(timers), func(stmt *sql.Stmt, i int) error {
			t := timers[i]
			_, err := stmt.ExecContext(ctx, runID, string(t.Kind), t.Delay, t.Callable)
			return err
		})
}

// AddErrors stores page error messages.
func (s *RunStore) AddErrors(ctx context.Context, runID string, messages []string) error {
	return s.batch(ctx, `INSERT INTO page_errors(run_id, message) VALUES(?,?)`,
		len(messages), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, runID, messages[i])
			return err
		})
}

// RecordDispatch stores the outcome of one replayed event.
func (s *RunStore) RecordDispatch(ctx context.Context, runID, selector, eventType string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches(run_id, selector, event_type, ok, at) VALUES(?,?,?,?,?)`,
		runID, selector, eventType, ok, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

func (s *RunStore) batch(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "batch insert")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			_ = tx.Rollback()
			logging.StoreError("batch insert failed at row %d: %v", i, err)
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = `r.id, r.target, r.host, r.started_at, r.finished_at,
	(SELECT COUNT(*) FROM records    WHERE run_id = r.id),
	(SELECT COUNT(*) FROM timers     WHERE run_id = r.id),
	(SELECT COUNT(*) FROM page_errors WHERE run_id = r.id),
	(SELECT COUNT(*) FROM dispatches WHERE run_id = r.id)`

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its counts.
func (s *RunStore) GetRun(ctx context.Context, runID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&run.ID, &run.Target, &run.Host, &started, &finished,
		&run.Records, &run.Timers, &run.Errors, &run.Dispatches); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}

// Records returns the stored records of a run in insertion order.
func (s *RunStore) Records(ctx context.Context, runID string) ([]engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT tag_name, node_type, selector, event_type, source,
		use_capture, handler, text FROM records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []engine.Record
	for rows.Next() {
		var (
			r       engine.Record
			kind    int
			source  string
			capture sql.NullBool
			handler sql.NullString
			text    sql.NullString
		)
		if err := rows.Scan(&r.TagName, &kind, &r.Selector, &r.EventType, &source, &capture, &handler, &text); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.NodeKind = dom.NodeKind(kind)
		r.Source = engine.Source(source)
		if capture.Valid {
			c := capture.Bool
			r.Capture = &c
		}
		r.Handler = handler.String
		r.Text = text.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Dispatches returns the replayed events of a run in order.
func (s *RunStore) Dispatches(ctx context.Context, runID string) ([]Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT selector, event_type, ok, at FROM dispatches WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var (
			d  Dispatch
			at int64
		)
		if err := rows.Scan(&d.Selector, &d.EventType, &d.OK, &at); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		d.At = time.UnixMilli(at).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
