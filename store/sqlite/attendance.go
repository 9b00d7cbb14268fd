package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

// AddAttendance appends raw records for a person in one transaction.
// Several records on the same date are allowed; the classifier merges them.
func (s *Store) AddAttendance(ctx context.Context, personID generic.PersonID, recs ...attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons WHERE id = ?", personID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrPersonNotFound, personID)
	}

	ts := now()
	for _, rec := range recs {
		if err := insertRecord(ctx, tx, personID, rec, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertRecord(ctx context.Context, db execer, personID generic.PersonID, rec attendance.Record, ts string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO attendance_records (person_id, date, check_in, check_out, on_leave, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		personID, formatDate(rec.Date), nullClock(rec.CheckIn), nullClock(rec.CheckOut),
		rec.OnLeave, rec.Note, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attendance for %s on %s: %w", personID, rec.Date, err)
	}
	return nil
}

// LoadAttendance returns a person's raw records within period, ordered by
// date then insertion.
func (s *Store) LoadAttendance(ctx context.Context, personID generic.PersonID, period generic.Period) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, check_in, check_out, on_leave, note
		FROM attendance_records
		WHERE person_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC`,
		personID, formatDate(period.Start), formatDate(period.End),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []attendance.Record{}
	for rows.Next() {
		var rec attendance.Record
		var date string
		var in, out sql.NullString
		if err := rows.Scan(&date, &in, &out, &rec.OnLeave, &rec.Note); err != nil {
			return nil, err
		}
		rec.Date = parseDate(date)
		if rec.CheckIn, err = clockPtr(in); err != nil {
			return nil, fmt.Errorf("record %s on %s: %w", personID, date, err)
		}
		if rec.CheckOut, err = clockPtr(out); err != nil {
			return nil, fmt.Errorf("record %s on %s: %w", personID, date, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
