package attendance

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

var sixty = decimal.NewFromInt(60)

// Classifier turns raw records into one Day per calendar day of a period.
//
// It never fails: missing schedule data degrades to present/absent from the
// existence of a check-in, with zero lateness.
type Classifier struct {
	WorkWeek generic.WorkWeek
	Holidays generic.HolidayCalendar

	// CompanyID scopes holiday lookups.
	CompanyID string

	// DefaultGraceMinutes applies when the shift or timetable entry carries
	// no grace period of its own.
	DefaultGraceMinutes int
}

// NewClassifier returns a Monday-Friday classifier without holidays.
func NewClassifier() *Classifier {
	return &Classifier{WorkWeek: generic.DefaultWorkWeek()}
}

// Classify produces the days of period in ascending date order. Records
// outside the period are ignored.
func (c *Classifier) Classify(period generic.Period, records []Record, sched Schedule) []Day {
	byDate := mergeRecords(period, records)

	days := make([]Day, 0, generic.DaysBetween(period.Start, period.End)+1)
	for _, date := range period.Days() {
		rec, ok := byDate[date.String()]
		var recp *Record
		if ok {
			recp = &rec
		}
		days = append(days, c.classifyDay(date, recp, sched))
	}
	return days
}

func (c *Classifier) classifyDay(date generic.TimePoint, rec *Record, sched Schedule) Day {
	day := Day{Date: date, ExpectedHours: decimal.Zero}
	if rec != nil {
		day.CheckIn = rec.CheckIn
		day.CheckOut = rec.CheckOut
	}

	if !c.WorkWeek.IsWorkday(date.Weekday()) {
		day.Status = StatusWeekend
		return day
	}
	if c.Holidays != nil && c.Holidays.IsHoliday(c.CompanyID, date) {
		day.Status = StatusHoliday
		return day
	}

	w, hasWindow := sched.windowFor(date.Weekday())
	if hasWindow {
		day.ExpectedHours = decimal.NewFromInt(int64(w.normalizedEnd() - w.start)).Div(sixty)
	}

	switch {
	case rec == nil:
		day.Status = StatusAbsent
		return day
	case rec.OnLeave:
		day.Status = StatusOnLeave
		return day
	case rec.CheckIn == nil:
		day.Status = StatusAbsent
		return day
	}

	day.Status = StatusPresent
	if !hasWindow {
		return day
	}

	// Zero grace on the window inherits the classifier default.
	grace := w.grace
	if grace == 0 {
		grace = c.DefaultGraceMinutes
	}
	in := *rec.CheckIn
	if w.overnight() && in < w.end {
		in += generic.MinutesPerDay
	}
	if late := int(in) - int(w.start) - grace; late > 0 {
		day.Status = StatusLate
		day.LateMinutes = late
	}

	if rec.CheckOut != nil {
		out := *rec.CheckOut
		if w.overnight() && out < w.start {
			out += generic.MinutesPerDay
		}
		if early := int(w.normalizedEnd()) - int(out); early > 0 {
			day.EarlyLeaveMinutes = early
		}
	}
	return day
}

// mergeRecords keys in-period records by date. Several rows on one date
// collapse into one: earliest check-in, latest check-out, leave wins.
func mergeRecords(period generic.Period, records []Record) map[string]Record {
	sorted := make([]Record, 0, len(records))
	for _, r := range records {
		if period.Contains(r.Date) {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make(map[string]Record, len(sorted))
	for _, r := range sorted {
		key := r.Date.String()
		existing, ok := out[key]
		if !ok {
			out[key] = r
			continue
		}
		existing.OnLeave = existing.OnLeave || r.OnLeave
		if r.CheckIn != nil && (existing.CheckIn == nil || *r.CheckIn < *existing.CheckIn) {
			existing.CheckIn = r.CheckIn
		}
		if r.CheckOut != nil && (existing.CheckOut == nil || *r.CheckOut > *existing.CheckOut) {
			existing.CheckOut = r.CheckOut
		}
		out[key] = existing
	}
	return out
}

// WorkingDays counts days that are neither weekend nor holiday.
func WorkingDays(days []Day) int {
	n := 0
	for _, d := range days {
		if d.Status.IsWorkingDay() {
			n++
		}
	}
	return n
}
