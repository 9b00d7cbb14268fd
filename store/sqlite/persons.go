package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PERSON STORE
// =============================================================================

// SavePerson inserts or updates a person. The assigned shift is kept.
func (s *Store) SavePerson(ctx context.Context, p payroll.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO persons (id, name, person_type, gross_salary, company_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			person_type = excluded.person_type,
			gross_salary = excluded.gross_salary,
			company_id = excluded.company_id,
			updated_at = excluded.updated_at
	`

	ts := now()
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Type, p.GrossSalary.String(), p.CompanyID, ts, ts,
	)
	return err
}

// GetPerson retrieves a person by ID.
func (s *Store) GetPerson(ctx context.Context, id generic.PersonID) (*payroll.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, person_type, gross_salary, company_id FROM persons WHERE id = ?",
		id,
	)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrPersonNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersons returns all persons ordered by ID.
func (s *Store) ListPersons(ctx context.Context) ([]payroll.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, person_type, gross_salary, company_id FROM persons ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons := []payroll.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (payroll.Person, error) {
	var p payroll.Person
	var gross string
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &gross, &p.CompanyID); err != nil {
		return payroll.Person{}, err
	}
	d, err := decimal.NewFromString(gross)
	if err != nil {
		return payroll.Person{}, fmt.Errorf("person %s: bad gross_salary %q: %w", p.ID, gross, err)
	}
	p.GrossSalary = d
	return p, nil
}

// =============================================================================
// SHIFT STORE
// =============================================================================

// SaveShift inserts or updates a shift.
func (s *Store) SaveShift(ctx context.Context, sh attendance.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO shifts (id, name, start_time, end_time, grace_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			grace_minutes = excluded.grace_minutes
	`

	_, err := s.db.ExecContext(ctx, query,
		sh.ID, sh.Name, sh.Start.String(), sh.End.String(), sh.GraceMinutes, now(),
	)
	return err
}

// GetShift retrieves a shift by ID.
func (s *Store) GetShift(ctx context.Context, id string) (*attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getShift(ctx, id)
}

func (s *Store) getShift(ctx context.Context, id string) (*attendance.Shift, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, start_time, end_time, grace_minutes FROM shifts WHERE id = ?",
		id,
	)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrShiftNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// ListShifts returns all shifts ordered by name.
func (s *Store) ListShifts(ctx context.Context) ([]attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, start_time, end_time, grace_minutes FROM shifts ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := []attendance.Shift{}
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

func scanShift(row scanner) (attendance.Shift, error) {
	var sh attendance.Shift
	var start, end string
	if err := row.Scan(&sh.ID, &sh.Name, &start, &end, &sh.GraceMinutes); err != nil {
		return attendance.Shift{}, err
	}
	var err error
	if sh.Start, err = generic.ParseTimeOfDay(start); err != nil {
		return attendance.Shift{}, err
	}
	if sh.End, err = generic.ParseTimeOfDay(end); err != nil {
		return attendance.Shift{}, err
	}
	return sh, nil
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

// SetSchedule assigns a shift (empty = none) and replaces the person's
// timetable in one transaction.
func (s *Store) SetSchedule(ctx context.Context, personID generic.PersonID, shiftID string, timetable []attendance.TimetableEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if shiftID != "" {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM shifts WHERE id = ?", shiftID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrShiftNotFound, shiftID)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE persons SET shift_id = ?, updated_at = ? WHERE id = ?",
		nullString(shiftID), now(), personID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrPersonNotFound, personID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM timetable_entries WHERE person_id = ?", personID); err != nil {
		return err
	}
	for _, e := range timetable {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO timetable_entries (person_id, weekday, start_time, end_time, grace_minutes)
			VALUES (?, ?, ?, ?, ?)`,
			personID, int(e.Weekday), e.Start.String(), e.End.String(), e.GraceMinutes,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("duplicate timetable entry for %s", e.Weekday)
			}
			return err
		}
	}

	return tx.Commit()
}

// LoadSchedule returns the person's shift and timetable. A person without
// either gets an empty schedule.
func (s *Store) LoadSchedule(ctx context.Context, personID generic.PersonID) (attendance.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sched attendance.Schedule

	var shiftID sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT shift_id FROM persons WHERE id = ?", personID).Scan(&shiftID)
	if errors.Is(err, sql.ErrNoRows) {
		return sched, fmt.Errorf("%w: %s", generic.ErrPersonNotFound, personID)
	}
	if err != nil {
		return sched, err
	}
	if shiftID.Valid {
		sh, err := s.getShift(ctx, shiftID.String)
		if err != nil && !errors.Is(err, ErrShiftNotFound) {
			return sched, err
		}
		sched.Shift = sh
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT weekday, start_time, end_time, grace_minutes
		FROM timetable_entries WHERE person_id = ? ORDER BY weekday`,
		personID,
	)
	if err != nil {
		return sched, err
	}
	defer rows.Close()

	for rows.Next() {
		var e attendance.TimetableEntry
		var wd int
		var start, end string
		if err := rows.Scan(&wd, &start, &end, &e.GraceMinutes); err != nil {
			return sched, err
		}
		e.Weekday = time.Weekday(wd)
		if e.Start, err = generic.ParseTimeOfDay(start); err != nil {
			return sched, err
		}
		if e.End, err = generic.ParseTimeOfDay(end); err != nil {
			return sched, err
		}
		sched.Timetable = append(sched.Timetable, e)
	}
	return sched, rows.Err()
}
