package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.CompanyID,
		formatDate(h.Date),
		h.Name,
		h.Recurring,
		now(),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrHolidayNotFound, id)
	}
	return nil
}

// IsHoliday checks if a date is a holiday for the given company.
// Global holidays (empty company) apply to everyone; recurring holidays
// match on month and day in any year.
func (s *Store) IsHoliday(companyID string, date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`

	var count int
	err := s.db.QueryRow(query, companyID, formatDate(date), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// GetAllHolidays returns the company's and global holidays (for admin UI).
func (s *Store) GetAllHolidays(ctx context.Context, companyID string) ([]generic.Holiday, error) {
	return s.queryHolidays(ctx, `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE company_id = ? OR company_id = ''
		ORDER BY date ASC, name ASC`,
		companyID,
	)
}

// Calendar loads every holiday into a StaticCalendar, so a payroll run
// classifies against one consistent snapshot without a query per day.
func (s *Store) Calendar(ctx context.Context) (generic.StaticCalendar, error) {
	holidays, err := s.queryHolidays(ctx, `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		ORDER BY date ASC, name ASC`,
	)
	if err != nil {
		return generic.StaticCalendar{}, err
	}
	return generic.StaticCalendar{Holidays: holidays}, nil
}

func (s *Store) queryHolidays(ctx context.Context, query string, args ...any) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.CompanyID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = parseDate(dateStr)
		holidays = append(holidays, h)
	}

	return holidays, rows.Err()
}
