/*
Package sqlite provides a SQLite-backed implementation of the payroll storage.

PURPOSE:
  Persists everything a payroll run reads (persons, schedules, attendance,
  holidays, deduction rules) and everything it writes (payslips, run
  records). In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  payroll.Source:          Run inputs (persons, records, schedules, rules)
  generic.HolidayCalendar: Company and global holidays

KEY TABLES:
  persons:            Employees and teachers with gross salary and shift
  shifts:             Named working windows
  timetable_entries:  Per-weekday overrides of the shift
  attendance_records: Raw check-in/check-out rows (several per day allowed)
  holidays:           Company-specific and global holidays
  deduction_rules:    Rule definitions as config_json (versioned)
  payroll_runs:       One row per batch run
  payslips:           One row per (person, period); final rows are frozen

RULE STORAGE:
  Rules are stored as the factory's JSON, not as columns. A row whose JSON
  no longer decodes is returned by LoadRules as a RuleFailure, so one bad
  rule never blocks a payroll run.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  loader := payroll.NewLoader(store, classifier)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/loader.go: Source interface
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rules *factory.RuleFactory
}

var (
	_ payroll.Source          = (*Store)(nil)
	_ generic.HolidayCalendar = (*Store)(nil)
)

var (
	ErrShiftNotFound   = errors.New("shift not found")
	ErrPayslipNotFound = errors.New("payslip not found")
	ErrPayslipFinal    = errors.New("payslip is final")
	ErrHolidayNotFound = errors.New("holiday not found")
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, rules: factory.NewRuleFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Persons (employees and teachers)
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		person_type TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		shift_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Shifts
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		grace_minutes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Timetable (per-weekday override of the shift)
	CREATE TABLE IF NOT EXISTS timetable_entries (
		person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		weekday INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		grace_minutes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (person_id, weekday)
	);

	-- Raw attendance (device or admin entered, several rows per day allowed)
	CREATE TABLE IF NOT EXISTS attendance_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		check_in TEXT,
		check_out TEXT,
		on_leave BOOLEAN NOT NULL DEFAULT FALSE,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Period loads (hot path)
	CREATE INDEX IF NOT EXISTS idx_attendance_person_date
		ON attendance_records(person_id, date);

	-- Holidays (company-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_company_date
		ON holidays(company_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(company_id, date, name);

	-- Deduction rules
	CREATE TABLE IF NOT EXISTS deduction_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		penalty_type TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_active_priority
		ON deduction_rules(active, priority, id);

	-- Payroll runs
	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		apply_deductions BOOLEAN NOT NULL DEFAULT TRUE,
		persons INTEGER NOT NULL DEFAULT 0,
		reports INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_runs_period
		ON payroll_runs(period_start, period_end, status);

	-- Payslips (one per person and period)
	CREATE TABLE IF NOT EXISTS payslips (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		person_name TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		total_deductions TEXT NOT NULL,
		net_salary TEXT NOT NULL,
		over_deduction TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'draft',
		report_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(person_id, period_start, period_end)
	);

	CREATE INDEX IF NOT EXISTS idx_payslips_period
		ON payslips(period_start, period_end);
	CREATE INDEX IF NOT EXISTS idx_payslips_run
		ON payslips(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payslips", "payroll_runs", "deduction_rules", "holidays",
		"attendance_records", "timetable_entries", "persons", "shifts",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func formatDate(tp generic.TimePoint) string { return tp.Time.Format(dateLayout) }

func parseDate(s string) generic.TimePoint {
	t, _ := time.Parse(dateLayout, s)
	return generic.DateOf(t)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTimestamp(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullClock(t *generic.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func clockPtr(ns sql.NullString) (*generic.TimeOfDay, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := generic.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
