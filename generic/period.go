package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The explicit pay-period boundary
// =============================================================================

// Period is an inclusive range of calendar days [Start, End]. Every engine
// call takes a Period explicitly; there is no ambient "current month".
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// MonthPeriod returns the calendar month as a pay period.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// Validate returns ErrInvalidPeriod when the period is empty or inverted.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Month and Year label the period by its start day (export headers use them).
func (p Period) Month() time.Month { return p.Start.Month() }
func (p Period) Year() int         { return p.Start.Year() }

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PreviousMonth returns the calendar month before the one containing p.Start.
func (p Period) PreviousMonth() Period {
	prev := StartOfMonth(p.Start.Year(), p.Start.Month()).AddMonths(-1)
	return MonthPeriod(prev.Year(), prev.Month())
}
