// Package attendance classifies raw check-in/check-out records into one
// status per calendar day of a pay period.
package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusOnLeave Status = "on_leave"
	StatusHoliday Status = "holiday"
	StatusWeekend Status = "weekend"
)

// IsWorkingDay reports whether the day counts toward working days in the
// period. Weekends and holidays never do.
func (s Status) IsWorkingDay() bool {
	return s != StatusWeekend && s != StatusHoliday
}

// =============================================================================
// INPUT - Raw attendance rows and the expected schedule
// =============================================================================

// Record is one raw attendance row as captured by the device or an admin.
type Record struct {
	Date     generic.TimePoint
	CheckIn  *generic.TimeOfDay
	CheckOut *generic.TimeOfDay
	OnLeave  bool
	Note     string
}

// Shift is the default working window assigned to a person. A zero
// GraceMinutes inherits Classifier.DefaultGraceMinutes.
type Shift struct {
	ID           string
	Name         string
	Start        generic.TimeOfDay
	End          generic.TimeOfDay
	GraceMinutes int
}

// TimetableEntry overrides the shift for one weekday (teachers' timetables).
// GraceMinutes follows the same inheritance rule as Shift.
type TimetableEntry struct {
	Weekday      time.Weekday
	Start        generic.TimeOfDay
	End          generic.TimeOfDay
	GraceMinutes int
}

// Schedule is everything known about when a person is expected to work.
type Schedule struct {
	Shift     *Shift
	Timetable []TimetableEntry
}

// window is the resolved expected working window for a single day.
type window struct {
	start generic.TimeOfDay
	end   generic.TimeOfDay
	grace int
}

// windowFor resolves the timetable entry for the weekday, else the shift.
func (s Schedule) windowFor(wd time.Weekday) (window, bool) {
	for _, e := range s.Timetable {
		if e.Weekday == wd {
			return window{start: e.Start, end: e.End, grace: e.GraceMinutes}, true
		}
	}
	if s.Shift != nil {
		return window{start: s.Shift.Start, end: s.Shift.End, grace: s.Shift.GraceMinutes}, true
	}
	return window{}, false
}

// overnight normalizes an end boundary that wraps past midnight.
func (w window) overnight() bool { return w.end < w.start }

func (w window) normalizedEnd() generic.TimeOfDay {
	if w.overnight() {
		return w.end + generic.MinutesPerDay
	}
	return w.end
}

// =============================================================================
// DAY - The classified output
// =============================================================================

// Day is the classified attendance for one person on one date.
type Day struct {
	Date              generic.TimePoint  `json:"date"`
	Status            Status             `json:"status"`
	CheckIn           *generic.TimeOfDay `json:"check_in,omitempty"`
	CheckOut          *generic.TimeOfDay `json:"check_out,omitempty"`
	LateMinutes       int                `json:"late_minutes"`
	EarlyLeaveMinutes int                `json:"early_leave_minutes"`
	ExpectedHours     decimal.Decimal    `json:"expected_hours"`
}

// MarshalJSON adds the derived day name and details strings so report
// consumers do not have to recompute them.
func (d Day) MarshalJSON() ([]byte, error) {
	type plain Day
	return json.Marshal(struct {
		plain
		DayName string `json:"day_name"`
		Details string `json:"details"`
	}{plain(d), d.DayName(), d.Details()})
}

// DayName is the English weekday name used in reports.
func (d Day) DayName() string {
	return d.Date.Weekday().String()
}

// IsLate reports whether the person arrived after the grace window.
func (d Day) IsLate() bool { return d.Status == StatusLate }

// IsAbsent reports whether the person did not show up on a working day.
func (d Day) IsAbsent() bool { return d.Status == StatusAbsent }

// LeftEarly reports whether the person checked out before the scheduled end.
func (d Day) LeftEarly() bool { return d.EarlyLeaveMinutes > 0 }

// Details summarizes the day for audit exports, e.g.
// "Late 15 min, left early 30 min".
func (d Day) Details() string {
	var parts []string
	switch d.Status {
	case StatusAbsent:
		parts = append(parts, "Absent")
	case StatusLate:
		parts = append(parts, fmt.Sprintf("Late %d min", d.LateMinutes))
	case StatusOnLeave:
		parts = append(parts, "On leave")
	case StatusHoliday:
		parts = append(parts, "Holiday")
	case StatusWeekend:
		parts = append(parts, "Weekend")
	}
	if d.EarlyLeaveMinutes > 0 {
		if len(parts) == 0 {
			parts = append(parts, fmt.Sprintf("Left early %d min", d.EarlyLeaveMinutes))
		} else {
			parts = append(parts, fmt.Sprintf("left early %d min", d.EarlyLeaveMinutes))
		}
	}
	if len(parts) == 0 {
		return "Present"
	}
	return strings.Join(parts, ", ")
}
