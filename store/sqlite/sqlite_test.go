/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Persons, shifts and schedules
- Attendance records and holiday lookups
- Rule storage (versioning, broken configs become failures)
- Payslips (final payslips are frozen) and run records
- A full load-and-run over the store
*/
package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func april2025() generic.Period { return generic.MonthPeriod(2025, time.April) }

func apr(day int) generic.TimePoint { return generic.NewTimePoint(2025, time.April, day) }

func clock(h, m int) *generic.TimeOfDay { v := generic.NewTimeOfDay(h, m); return &v }

func absenceRule(id string, days string) deduction.Rule {
	return deduction.Rule{
		ID: generic.RuleID(id), Name: "Absence " + id, Active: true,
		Formula: deduction.DailySalary{Days: dec(days)},
		Trigger: deduction.DayThreshold{Event: deduction.EventAbsent},
	}
}

// ===== PERSONS & SCHEDULES =====

func TestPersons_SaveGetList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "t-2", Name: "Bea", Type: generic.PersonTeacher, GrossSalary: dec("1800.50")}))
	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "e-1", Name: "Ali", Type: generic.PersonEmployee, GrossSalary: dec("2100"), CompanyID: "acme"}))

	p, err := store.GetPerson(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, "Bea", p.Name)
	assert.True(t, dec("1800.50").Equal(p.GrossSalary))

	// Update keeps the row count.
	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "t-2", Name: "Beatrice", Type: generic.PersonTeacher, GrossSalary: dec("1900")}))

	persons, err := store.ListPersons(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 2)
	assert.Equal(t, generic.PersonID("e-1"), persons[0].ID)
	assert.Equal(t, "Beatrice", persons[1].Name)

	_, err = store.GetPerson(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrPersonNotFound)
}

func TestSchedule_ShiftAndTimetable(t *testing.T) {
	// GIVEN: A person on a day shift with a Friday timetable override
	// WHEN: Loading the schedule back
	// THEN: Both the shift and the override are returned
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "e-1", Name: "Ali", Type: generic.PersonEmployee, GrossSalary: dec("2100")}))
	require.NoError(t, store.SaveShift(ctx, attendance.Shift{
		ID: "day", Name: "Day", Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(16, 0), GraceMinutes: 5,
	}))
	require.NoError(t, store.SetSchedule(ctx, "e-1", "day", []attendance.TimetableEntry{
		{Weekday: time.Friday, Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(12, 0)},
	}))

	sched, err := store.LoadSchedule(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, sched.Shift)
	assert.Equal(t, "day", sched.Shift.ID)
	assert.Equal(t, 5, sched.Shift.GraceMinutes)
	require.Len(t, sched.Timetable, 1)
	assert.Equal(t, time.Friday, sched.Timetable[0].Weekday)
	assert.Equal(t, generic.NewTimeOfDay(12, 0), sched.Timetable[0].End)

	// Replacing the schedule clears the old timetable.
	require.NoError(t, store.SetSchedule(ctx, "e-1", "", nil))
	sched, err = store.LoadSchedule(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, sched.Shift)
	assert.Empty(t, sched.Timetable)
}

func TestSchedule_Errors(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "e-1", Name: "Ali", Type: generic.PersonEmployee, GrossSalary: dec("1")}))

	err := store.SetSchedule(ctx, "e-1", "night", nil)
	assert.ErrorIs(t, err, sqlite.ErrShiftNotFound)

	err = store.SetSchedule(ctx, "ghost", "", nil)
	assert.ErrorIs(t, err, generic.ErrPersonNotFound)

	dup := []attendance.TimetableEntry{
		{Weekday: time.Monday, Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(12, 0)},
		{Weekday: time.Monday, Start: generic.NewTimeOfDay(9, 0), End: generic.NewTimeOfDay(13, 0)},
	}
	assert.Error(t, store.SetSchedule(ctx, "e-1", "", dup))

	_, err = store.LoadSchedule(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrPersonNotFound)
}

// ===== ATTENDANCE & HOLIDAYS =====

func TestAttendance_LoadWithinPeriod(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "e-1", Name: "Ali", Type: generic.PersonEmployee, GrossSalary: dec("1")}))

	require.NoError(t, store.AddAttendance(ctx, "e-1",
		attendance.Record{Date: apr(3), CheckIn: clock(8, 10)},
		attendance.Record{Date: apr(1), CheckIn: clock(8, 0), CheckOut: clock(16, 0)},
		attendance.Record{Date: apr(3), CheckOut: clock(15, 30), Note: "badge"},
		attendance.Record{Date: apr(4), OnLeave: true},
		attendance.Record{Date: generic.NewTimePoint(2025, time.May, 1), CheckIn: clock(8, 0)},
	))

	recs, err := store.LoadAttendance(ctx, "e-1", april2025())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, apr(1), recs[0].Date)
	// Same-date rows keep insertion order.
	assert.Equal(t, generic.NewTimeOfDay(8, 10), *recs[1].CheckIn)
	assert.Nil(t, recs[1].CheckOut)
	assert.Equal(t, "badge", recs[2].Note)
	assert.True(t, recs[3].OnLeave)

	err = store.AddAttendance(ctx, "ghost", attendance.Record{Date: apr(1)})
	assert.ErrorIs(t, err, generic.ErrPersonNotFound)
}

func TestHolidays_CompanyGlobalRecurring(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h1", CompanyID: "acme", Date: apr(18), Name: "Good Friday"}))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h2", Date: generic.NewTimePoint(2020, time.May, 1), Name: "Labour Day", Recurring: true}))

	tests := []struct {
		name    string
		company string
		date    generic.TimePoint
		want    bool
	}{
		{"company holiday", "acme", apr(18), true},
		{"other company", "globex", apr(18), false},
		{"recurring global", "globex", generic.NewTimePoint(2025, time.May, 1), true},
		{"plain day", "acme", apr(17), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.IsHoliday(tt.company, tt.date))
		})
	}

	cal, err := store.Calendar(ctx)
	require.NoError(t, err)
	assert.Len(t, cal.Holidays, 2)
	assert.True(t, cal.IsHoliday("acme", apr(18)))

	hs, err := store.GetAllHolidays(ctx, "globex")
	require.NoError(t, err)
	assert.Len(t, hs, 1)

	require.NoError(t, store.DeleteHoliday(ctx, "h1"))
	assert.ErrorIs(t, store.DeleteHoliday(ctx, "h1"), sqlite.ErrHolidayNotFound)
}

// ===== RULES =====

func TestRules_SaveVersionDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	rule := absenceRule("abs", "1")
	require.NoError(t, store.SaveRule(ctx, rule))
	rule.Name = "Absence (full day)"
	require.NoError(t, store.SaveRule(ctx, rule))

	rec, err := store.GetRule(ctx, "abs")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, "Absence (full day)", rec.Name)

	decoded, err := store.DecodeRule(*rec)
	require.NoError(t, err)
	assert.Equal(t, deduction.KindDailySalary, decoded.Kind())

	require.NoError(t, store.DeleteRule(ctx, "abs"))
	_, err = store.GetRule(ctx, "abs")
	assert.ErrorIs(t, err, generic.ErrRuleNotFound)
	assert.ErrorIs(t, store.DeleteRule(ctx, "abs"), generic.ErrRuleNotFound)
}

func TestRules_LoadReportsBrokenConfigs(t *testing.T) {
	// GIVEN: One valid rule, one inactive rule and one whose config no
	//        longer decodes
	// WHEN: Loading rules for a run
	// THEN: The valid rule loads, the broken one is a failure, the
	//       inactive one is skipped
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, absenceRule("abs", "1")))
	inactive := absenceRule("old", "2")
	inactive.Active = false
	require.NoError(t, store.SaveRule(ctx, inactive))
	require.NoError(t, store.SaveRuleRecord(ctx, sqlite.RuleRecord{
		ID: "broken", Name: "Broken", Active: true, Priority: 3,
		ConfigJSON: `{"id":"broken","name":"Broken","deduction_type":"bonus","trigger":{"type":"day_threshold","event":"late"}}`,
	}))

	rules, failures, err := store.LoadRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, generic.RuleID("abs"), rules[0].ID)
	require.Len(t, failures, 1)
	assert.Equal(t, generic.RuleID("broken"), failures[0].RuleID)
	assert.True(t, generic.IsConfigError(failures[0]))

	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ===== PAYSLIPS & RUNS =====

func report(t *testing.T, id generic.PersonID, gross string) *payroll.Report {
	t.Helper()
	days := make([]attendance.Day, 0, 30)
	for _, d := range april2025().Days() {
		status := attendance.StatusPresent
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			status = attendance.StatusWeekend
		} else if d.Day() == 22 {
			status = attendance.StatusAbsent
		}
		days = append(days, attendance.Day{Date: d, Status: status})
	}
	rep, err := payroll.NewEngine(payroll.DefaultOptions()).Compute(payroll.Input{
		Person:          payroll.Person{ID: id, Name: "Person " + string(id), Type: generic.PersonTeacher, GrossSalary: dec(gross)},
		Period:          april2025(),
		Days:            days,
		Rules:           []deduction.Rule{absenceRule("abs", "1")},
		ApplyDeductions: true,
	})
	require.NoError(t, err)
	return rep
}

func TestPayslips_DraftReplacedFinalFrozen(t *testing.T) {
	// GIVEN: A draft payslip for April
	// WHEN: Saving again as final, then trying to overwrite the final one
	// THEN: The draft is replaced, the final one is kept and the write fails
	store := newStore(t)
	ctx := context.Background()

	draft, err := sqlite.NewPayslip("run-1", report(t, "t-1", "1000"), sqlite.PayslipDraft)
	require.NoError(t, err)
	require.NoError(t, store.SavePayslip(ctx, draft))

	final, err := sqlite.NewPayslip("run-2", report(t, "t-1", "1000"), sqlite.PayslipFinal)
	require.NoError(t, err)
	require.NoError(t, store.SavePayslip(ctx, final))

	again, err := sqlite.NewPayslip("run-3", report(t, "t-1", "2000"), sqlite.PayslipDraft)
	require.NoError(t, err)
	assert.ErrorIs(t, store.SavePayslip(ctx, again), sqlite.ErrPayslipFinal)

	slips, err := store.ListPayslips(ctx, april2025())
	require.NoError(t, err)
	require.Len(t, slips, 1)
	slip := slips[0]
	assert.Equal(t, "run-2", slip.RunID)
	assert.Equal(t, sqlite.PayslipFinal, slip.Status)
	// 1000 / 22 = 45.45 for one absence.
	assert.Equal(t, "45.45", slip.TotalDeductions.StringFixed(2))
	assert.Equal(t, "954.55", slip.NetSalary.StringFixed(2))

	got, err := store.GetPayslip(ctx, slip.ID)
	require.NoError(t, err)
	rep, err := got.Report()
	require.NoError(t, err)
	assert.Equal(t, generic.PersonID("t-1"), rep.Person.ID)
	assert.Equal(t, 22, rep.WorkingDays)

	_, err = store.GetPayslip(ctx, "nope")
	assert.ErrorIs(t, err, sqlite.ErrPayslipNotFound)
}

func TestPayslips_CorruptMoneyIsAnError(t *testing.T) {
	// GIVEN: A stored payslip whose net salary was overwritten with garbage
	// WHEN: Listing payslips
	// THEN: The read fails instead of reporting a zero net salary
	path := filepath.Join(t.TempDir(), "payroll.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	slip, err := sqlite.NewPayslip("run-1", report(t, "t-1", "1000"), sqlite.PayslipDraft)
	require.NoError(t, err)
	require.NoError(t, store.SavePayslip(ctx, slip))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE payslips SET net_salary = 'n/a'`)
	require.NoError(t, err)

	_, err = store.ListPayslips(ctx, april2025())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net_salary")
}

func TestRuns_RecordAndQuery(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	started := time.Date(2025, 5, 1, 2, 0, 0, 0, time.UTC)
	res := &payroll.Result{
		RunID:      "run-1",
		Period:     april2025(),
		Reports:    []*payroll.Report{report(t, "t-1", "1000"), report(t, "t-2", "2200")},
		Failures:   []payroll.PersonFailure{{PersonID: "t-3", Reason: "duplicate attendance day"}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}

	run, err := store.RecordRun(ctx, res, true, sqlite.PayslipDraft)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunPartial, run.Status)
	assert.Equal(t, 3, run.Persons)
	assert.Equal(t, 2, run.Reports)
	assert.Contains(t, run.Error, "person t-3: duplicate attendance day")

	complete, err := store.IsPeriodComplete(ctx, april2025())
	require.NoError(t, err)
	assert.False(t, complete)

	res.RunID = "run-2"
	res.Failures = nil
	res.StartedAt = started.Add(time.Hour)
	run, err = store.RecordRun(ctx, res, true, sqlite.PayslipDraft)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunCompleted, run.Status)

	complete, err = store.IsPeriodComplete(ctx, april2025())
	require.NoError(t, err)
	assert.True(t, complete)

	runs, err := store.GetPayrollRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	require.NotNil(t, runs[0].CompletedAt)

	partial, err := store.GetPayrollRuns(ctx, sqlite.RunPartial)
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, "run-1", partial[0].ID)

	slips, err := store.ListPayslips(ctx, april2025())
	require.NoError(t, err)
	assert.Len(t, slips, 2)
}

func TestRuns_FinalPayslipsAreSettled(t *testing.T) {
	// GIVEN: A final payslip for t-1 and a failed t-2 from an earlier run
	// WHEN: Re-running the month once t-2 is fixed
	// THEN: t-1's final payslip stands, t-2 gets a draft and the run completes
	store := newStore(t)
	ctx := context.Background()

	started := time.Date(2025, 5, 1, 2, 0, 0, 0, time.UTC)
	first := &payroll.Result{
		RunID:      "run-1",
		Period:     april2025(),
		Reports:    []*payroll.Report{report(t, "t-1", "1000")},
		Failures:   []payroll.PersonFailure{{PersonID: "t-2", Reason: "gross salary must not be negative"}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	run, err := store.RecordRun(ctx, first, true, sqlite.PayslipFinal)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunPartial, run.Status)

	second := &payroll.Result{
		RunID:      "run-2",
		Period:     april2025(),
		Reports:    []*payroll.Report{report(t, "t-1", "1000"), report(t, "t-2", "2200")},
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + time.Second),
	}
	run, err = store.RecordRun(ctx, second, true, sqlite.PayslipDraft)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Reports)
	assert.Zero(t, run.Failures)
	assert.Empty(t, run.Error)

	complete, err := store.IsPeriodComplete(ctx, april2025())
	require.NoError(t, err)
	assert.True(t, complete)

	slips, err := store.ListPayslips(ctx, april2025())
	require.NoError(t, err)
	require.Len(t, slips, 2)
	status := map[generic.PersonID]string{}
	for _, sl := range slips {
		status[sl.PersonID] = sl.Status
	}
	assert.Equal(t, sqlite.PayslipFinal, status["t-1"])
	assert.Equal(t, sqlite.PayslipDraft, status["t-2"])
}

// ===== END TO END =====

func TestStore_LoadAndRun(t *testing.T) {
	// GIVEN: An employee on a day shift, a company holiday, two late
	//        arrivals and a missing day, with an absence and a late rule
	// WHEN: Loading April from the store and running the batch
	// THEN: The report matches the in-memory source and a payslip is stored
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePerson(ctx, payroll.Person{ID: "e-1", Name: "Jonas", Type: generic.PersonEmployee, GrossSalary: dec("2100"), CompanyID: "acme"}))
	require.NoError(t, store.SaveShift(ctx, attendance.Shift{ID: "day", Name: "Day", Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(16, 0), GraceMinutes: 5}))
	require.NoError(t, store.SetSchedule(ctx, "e-1", "day", nil))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h1", CompanyID: "acme", Date: apr(18), Name: "Good Friday"}))

	var recs []attendance.Record
	for _, d := range april2025().Days() {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday || d.Day() == 18 || d.Day() == 22 {
			continue
		}
		in := clock(8, 0)
		if d.Day() == 2 || d.Day() == 3 {
			in = clock(8, 35)
		}
		recs = append(recs, attendance.Record{Date: d, CheckIn: in, CheckOut: clock(16, 0)})
	}
	require.NoError(t, store.AddAttendance(ctx, "e-1", recs...))
	require.NoError(t, store.SaveRule(ctx, absenceRule("abs", "1")))
	require.NoError(t, store.SaveRule(ctx, deduction.Rule{
		ID: "late", Name: "Late over 15", Active: true, Priority: 1,
		Formula: deduction.HourlySalary{Hours: dec("1")},
		Trigger: deduction.DayThreshold{Event: deduction.EventLate, OverMinutes: 15},
	}))

	cal, err := store.Calendar(ctx)
	require.NoError(t, err)
	classifier := attendance.NewClassifier()
	classifier.Holidays = cal

	inputs, err := payroll.NewLoader(store, classifier).Load(ctx, april2025(), true)
	require.NoError(t, err)

	runner := payroll.NewRunner(payroll.NewEngine(payroll.DefaultOptions()), 2, zaptest.NewLogger(t))
	res, err := runner.Run(ctx, april2025(), inputs)
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)

	rep := res.Reports[0]
	assert.Equal(t, 21, rep.WorkingDays)
	assert.Equal(t, "125.00", rep.TotalDeduction.StringFixed(2))
	assert.Equal(t, "1975.00", rep.NetSalary().StringFixed(2))

	run, err := store.RecordRun(ctx, res, true, sqlite.PayslipDraft)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunCompleted, run.Status)
}
