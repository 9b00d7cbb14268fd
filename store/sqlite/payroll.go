package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PAYSLIP STORE
// =============================================================================

const (
	PayslipDraft = "draft"
	PayslipFinal = "final"
)

// Payslip is the persisted numeric summary of one person's report. The
// full report is kept as JSON for audit and PDF rendering.
type Payslip struct {
	ID              string
	RunID           string
	PersonID        generic.PersonID
	PersonName      string
	Period          generic.Period
	GrossSalary     decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal
	OverDeduction   decimal.Decimal
	Status          string
	ReportJSON      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPayslip builds a payslip from a computed report.
func NewPayslip(runID string, r *payroll.Report, status string) (Payslip, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Payslip{}, fmt.Errorf("failed to encode report for %s: %w", r.Person.ID, err)
	}
	return Payslip{
		ID:              uuid.NewString(),
		RunID:           runID,
		PersonID:        r.Person.ID,
		PersonName:      r.Person.Name,
		Period:          generic.Period{Start: r.PeriodStart, End: r.PeriodEnd},
		GrossSalary:     r.Summary.Gross,
		TotalDeductions: r.Summary.TotalDeduction,
		NetSalary:       r.Summary.Net,
		OverDeduction:   r.Summary.OverDeduction,
		Status:          status,
		ReportJSON:      string(data),
	}, nil
}

// Report decodes the stored report.
func (p Payslip) Report() (*payroll.Report, error) {
	var r payroll.Report
	if err := json.Unmarshal([]byte(p.ReportJSON), &r); err != nil {
		return nil, fmt.Errorf("payslip %s: bad report_json: %w", p.ID, err)
	}
	return &r, nil
}

// SavePayslip inserts or replaces the payslip for (person, period). A final
// payslip is never overwritten; ErrPayslipFinal is returned instead.
func (s *Store) SavePayslip(ctx context.Context, p Payslip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payslips (id, run_id, person_id, person_name, period_start, period_end,
			gross_salary, total_deductions, net_salary, over_deduction, status, report_json,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id, period_start, period_end) DO UPDATE SET
			run_id = excluded.run_id,
			person_name = excluded.person_name,
			gross_salary = excluded.gross_salary,
			total_deductions = excluded.total_deductions,
			net_salary = excluded.net_salary,
			over_deduction = excluded.over_deduction,
			status = excluded.status,
			report_json = excluded.report_json,
			updated_at = excluded.updated_at
		WHERE payslips.status = 'draft'
	`

	ts := now()
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.RunID, p.PersonID, p.PersonName,
		formatDate(p.Period.Start), formatDate(p.Period.End),
		p.GrossSalary.String(), p.TotalDeductions.String(), p.NetSalary.String(),
		p.OverDeduction.String(), p.Status, p.ReportJSON, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save payslip for %s: %w", p.PersonID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s %s", ErrPayslipFinal, p.PersonID, p.Period)
	}
	return nil
}

// GetPayslip retrieves a payslip by ID.
func (s *Store) GetPayslip(ctx context.Context, id string) (*Payslip, error) {
	slips, err := s.queryPayslips(ctx, payslipSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(slips) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPayslipNotFound, id)
	}
	return &slips[0], nil
}

// ListPayslips returns the payslips of a period ordered by person.
func (s *Store) ListPayslips(ctx context.Context, period generic.Period) ([]Payslip, error) {
	return s.queryPayslips(ctx, payslipSelect+`
		WHERE period_start = ? AND period_end = ?
		ORDER BY person_id`,
		formatDate(period.Start), formatDate(period.End),
	)
}

const payslipSelect = `
	SELECT id, run_id, person_id, person_name, period_start, period_end,
		gross_salary, total_deductions, net_salary, over_deduction, status, report_json,
		created_at, updated_at
	FROM payslips`

func (s *Store) queryPayslips(ctx context.Context, query string, args ...any) ([]Payslip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slips := []Payslip{}
	for rows.Next() {
		var p Payslip
		var start, end, gross, total, net, over, createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.RunID, &p.PersonID, &p.PersonName, &start, &end,
			&gross, &total, &net, &over, &p.Status, &p.ReportJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Period = generic.Period{Start: parseDate(start), End: parseDate(end)}
		money := []struct {
			column string
			raw    string
			dst    *decimal.Decimal
		}{
			{"gross_salary", gross, &p.GrossSalary},
			{"total_deductions", total, &p.TotalDeductions},
			{"net_salary", net, &p.NetSalary},
			{"over_deduction", over, &p.OverDeduction},
		}
		for _, m := range money {
			d, err := decimal.NewFromString(m.raw)
			if err != nil {
				return nil, fmt.Errorf("payslip %s: bad %s %q: %w", p.ID, m.column, m.raw, err)
			}
			*m.dst = d
		}
		p.CreatedAt = parseTimestamp(createdAt)
		p.UpdatedAt = parseTimestamp(updatedAt)
		slips = append(slips, p)
	}
	return slips, rows.Err()
}

// =============================================================================
// PAYROLL RUNS STORE
// =============================================================================

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunCanceled  = "canceled"
	RunFailed    = "failed"
)

// PayrollRun records one batch run for audit and UI display.
type PayrollRun struct {
	ID              string
	Period          generic.Period
	Status          string
	ApplyDeductions bool
	Persons         int
	Reports         int
	Failures        int
	Skipped         int
	Error           string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// SavePayrollRun inserts or updates a run record.
func (s *Store) SavePayrollRun(ctx context.Context, r PayrollRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payroll_runs (id, period_start, period_end, status, apply_deductions,
			persons, reports, failures, skipped, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			persons = excluded.persons,
			reports = excluded.reports,
			failures = excluded.failures,
			skipped = excluded.skipped,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, formatDate(r.Period.Start), formatDate(r.Period.End), r.Status, r.ApplyDeductions,
		r.Persons, r.Reports, r.Failures, r.Skipped, r.Error,
		nullTime(r.StartedAt), nullTime(r.CompletedAt), createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetPayrollRuns returns runs, newest first, optionally filtered by status.
func (s *Store) GetPayrollRuns(ctx context.Context, status string) ([]PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, period_start, period_end, status, apply_deductions, persons, reports,
			failures, skipped, error, started_at, completed_at, created_at
		FROM payroll_runs`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []PayrollRun{}
	for rows.Next() {
		var r PayrollRun
		var start, end, createdAt string
		var startedAt, completedAt sql.NullString
		if err := rows.Scan(&r.ID, &start, &end, &r.Status, &r.ApplyDeductions, &r.Persons,
			&r.Reports, &r.Failures, &r.Skipped, &r.Error, &startedAt, &completedAt, &createdAt); err != nil {
			return nil, err
		}
		r.Period = generic.Period{Start: parseDate(start), End: parseDate(end)}
		r.StartedAt = timePtr(startedAt)
		r.CompletedAt = timePtr(completedAt)
		r.CreatedAt = parseTimestamp(createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// IsPeriodComplete reports whether a completed run exists for period.
func (s *Store) IsPeriodComplete(ctx context.Context, period generic.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payroll_runs
		WHERE period_start = ? AND period_end = ? AND status = ?`,
		formatDate(period.Start), formatDate(period.End), RunCompleted,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// RUN PERSISTENCE
// =============================================================================

// RunStatus maps a runner result to a stored run status.
func RunStatus(res *payroll.Result) string {
	switch {
	case res.Canceled:
		return RunCanceled
	case len(res.Failures) > 0:
		return RunPartial
	default:
		return RunCompleted
	}
}

// RecordRun persists a finished run and one payslip per report. A report
// whose payslip is already final is settled: the final payslip stands and
// the person does not count as failed. Other save errors count as failures
// and, with the runner's person failures, are joined into run.Error.
func (s *Store) RecordRun(ctx context.Context, res *payroll.Result, apply bool, payslipStatus string) (PayrollRun, error) {
	started, finished := res.StartedAt, res.FinishedAt
	run := PayrollRun{
		ID:              res.RunID,
		Period:          res.Period,
		Status:          RunStatus(res),
		ApplyDeductions: apply,
		Persons:         len(res.Reports) + len(res.Failures) + res.Skipped,
		Reports:         len(res.Reports),
		Failures:        len(res.Failures),
		Skipped:         res.Skipped,
		StartedAt:       &started,
		CompletedAt:     &finished,
		CreatedAt:       started,
	}

	var errs []error
	for _, f := range res.Failures {
		errs = append(errs, fmt.Errorf("person %s: %s", f.PersonID, f.Reason))
	}

	saveFailures := 0
	for _, rep := range res.Reports {
		slip, err := NewPayslip(res.RunID, rep, payslipStatus)
		if err == nil {
			err = s.SavePayslip(ctx, slip)
		}
		if err == nil || errors.Is(err, ErrPayslipFinal) {
			continue
		}
		saveFailures++
		errs = append(errs, err)
	}
	if saveFailures > 0 {
		run.Failures += saveFailures
		run.Reports -= saveFailures
		if run.Status == RunCompleted {
			run.Status = RunPartial
		}
	}
	if len(errs) > 0 {
		run.Error = errors.Join(errs...).Error()
	}

	if err := s.SavePayrollRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to save run record: %w", err)
	}
	return run, nil
}
