/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates persons, shifts,
	attendance, holidays and deduction rules for April 2025 that exercise
	one feature of the engine.

AVAILABLE SCENARIOS:

	daily-absence:     One absence priced as a day of salary (1000/22 = 45.45)
	late-every-third:  Every third late arrival costs a fixed amount
	over-deduction:    Deductions exceed gross; net floors at zero
	teacher-timetable: Teacher on a weekday timetable with cumulative lateness

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create rules via factory JSON
 3. Create persons, shifts and schedules
 4. Add raw attendance for the month

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "late-every-third"}

	then POST /api/payroll/preview {"year": 2025, "month": 4}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: payroll endpoints
  - factory/rule.go: Rule JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "daily-absence",
		Name:        "Daily Absence",
		Description: "Teacher absent one day; the absence costs one day of salary",
	},
	{
		ID:          "late-every-third",
		Name:        "Every Third Late",
		Description: "Employee late seven times; every third lateness costs a fixed amount",
	},
	{
		ID:          "over-deduction",
		Name:        "Over-deduction",
		Description: "Percentage deductions exceed gross salary; net floors at zero with a warning",
	},
	{
		ID:          "teacher-timetable",
		Name:        "Teacher Timetable",
		Description: "Teacher on a Monday/Wednesday/Friday timetable with cumulative late minutes and an early leave",
	},
}

// scenarioMonth is the month every scenario fills.
var scenarioMonth = generic.MonthPeriod(2025, time.April)

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"daily-absence":     h.loadDailyAbsenceScenario,
		"late-every-third":  h.loadLateEveryThirdScenario,
		"over-deduction":    h.loadOverDeductionScenario,
		"teacher-timetable": h.loadTeacherTimetableScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"year":     scenarioMonth.Start.Year(),
		"month":    int(scenarioMonth.Start.Month()),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDailyAbsenceScenario(ctx context.Context) error {
	if err := h.createRuleFromJSON(ctx, `{
		"id": "absence-day",
		"name": "Unjustified absence",
		"penalty_type": "absence",
		"deduction_type": "daily_salary",
		"deduction_days": "1",
		"trigger": {"type": "day_threshold", "event": "absent"},
		"priority": 1
	}`); err != nil {
		return err
	}

	amina := payroll.Person{ID: "teacher-amina", Name: "Amina Haddad", Type: generic.PersonTeacher, GrossSalary: decimal.RequireFromString("1000")}
	return h.createPersonWithMonth(ctx, amina, dayShift(), func(d generic.TimePoint) *attendance.Record {
		if d.Day() == 22 {
			return nil
		}
		return checkedIn(d, 8, 0, 16, 0)
	})
}

func (h *Handler) loadLateEveryThirdScenario(ctx context.Context) error {
	if err := h.createRuleFromJSON(ctx, `{
		"id": "late-third",
		"name": "Every third late arrival",
		"penalty_type": "lateness",
		"deduction_type": "fixed",
		"deduction_amount": "50",
		"trigger": {"type": "every_nth", "event": "late", "count": 3},
		"priority": 1
	}`); err != nil {
		return err
	}

	lateDays := map[int]bool{1: true, 3: true, 7: true, 9: true, 14: true, 16: true, 24: true}
	jonas := payroll.Person{ID: "emp-jonas", Name: "Jonas Berg", Type: generic.PersonEmployee, GrossSalary: decimal.RequireFromString("3000")}
	return h.createPersonWithMonth(ctx, jonas, dayShift(), func(d generic.TimePoint) *attendance.Record {
		if lateDays[d.Day()] {
			return checkedIn(d, 8, 20, 16, 0)
		}
		return checkedIn(d, 8, 0, 16, 0)
	})
}

func (h *Handler) loadOverDeductionScenario(ctx context.Context) error {
	if err := h.createRuleFromJSON(ctx, `{
		"id": "absence-pct",
		"name": "Absence penalty (20% of gross)",
		"penalty_type": "absence",
		"deduction_type": "percentage",
		"deduction_amount": "20",
		"trigger": {"type": "day_threshold", "event": "absent"},
		"priority": 1
	}`); err != nil {
		return err
	}

	// Absent the whole second half of the month.
	sara := payroll.Person{ID: "emp-sara", Name: "Sara Lind", Type: generic.PersonEmployee, GrossSalary: decimal.RequireFromString("500")}
	return h.createPersonWithMonth(ctx, sara, dayShift(), func(d generic.TimePoint) *attendance.Record {
		if d.Day() > 15 {
			return nil
		}
		return checkedIn(d, 8, 0, 16, 0)
	})
}

func (h *Handler) loadTeacherTimetableScenario(ctx context.Context) error {
	if err := h.createRuleFromJSON(ctx, `{
		"id": "late-60",
		"name": "Each 60 late minutes",
		"penalty_type": "lateness",
		"deduction_type": "hourly_salary",
		"deduction_hours": "1",
		"trigger": {"type": "cumulative", "event": "late", "minutes": 60, "repeat": true},
		"priority": 1
	}`); err != nil {
		return err
	}
	if err := h.createRuleFromJSON(ctx, `{
		"id": "early-leave",
		"name": "Leaving over 30 minutes early",
		"penalty_type": "early_leave",
		"deduction_type": "fixed",
		"deduction_amount": "15",
		"trigger": {"type": "day_threshold", "event": "early_leave", "minutes": 30},
		"priority": 2
	}`); err != nil {
		return err
	}
	if err := h.Store.SaveHoliday(ctx, generic.Holiday{
		ID: "easter-monday-2025", Date: generic.NewTimePoint(2025, time.April, 21), Name: "Easter Monday",
	}); err != nil {
		return err
	}

	omar := payroll.Person{ID: "teacher-omar", Name: "Omar Nasser", Type: generic.PersonTeacher, GrossSalary: decimal.RequireFromString("2400")}
	if err := h.Store.SavePerson(ctx, omar); err != nil {
		return err
	}
	classes := []attendance.TimetableEntry{
		{Weekday: time.Monday, Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(13, 0), GraceMinutes: 5},
		{Weekday: time.Wednesday, Start: generic.NewTimeOfDay(10, 0), End: generic.NewTimeOfDay(15, 0), GraceMinutes: 5},
		{Weekday: time.Friday, Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(12, 0), GraceMinutes: 5},
	}
	// Tuesdays and Thursdays fall back to the day shift (staff duty).
	if err := h.Store.SaveShift(ctx, dayShift()); err != nil {
		return err
	}
	if err := h.Store.SetSchedule(ctx, omar.ID, dayShift().ID, classes); err != nil {
		return err
	}

	var recs []attendance.Record
	for _, d := range scenarioMonth.Days() {
		var rec *attendance.Record
		switch d.Weekday() {
		case time.Monday:
			rec = checkedIn(d, 8, 0, 13, 0)
		case time.Wednesday:
			rec = checkedIn(d, 10, 0, 15, 0)
		case time.Friday:
			rec = checkedIn(d, 8, 0, 12, 0)
		case time.Tuesday, time.Thursday:
			rec = checkedIn(d, 8, 0, 16, 0)
		}
		switch d.Day() {
		case 2:
			rec = checkedIn(d, 10, 35, 15, 0) // 35 min late
		case 9:
			rec = checkedIn(d, 10, 40, 15, 0) // 40 min late
		case 11:
			rec = checkedIn(d, 8, 0, 11, 15) // 45 min early
		case 23:
			rec = checkedIn(d, 10, 50, 15, 0) // 50 min late
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return h.Store.AddAttendance(ctx, omar.ID, recs...)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createRuleFromJSON(ctx context.Context, jsonStr string) error {
	rule, err := h.RuleFactory.ParseRule(jsonStr)
	if err != nil {
		return err
	}
	return h.Store.SaveRule(ctx, rule)
}

// createPersonWithMonth saves p on shift and records one row per weekday of
// the scenario month from day; nil means no record (absent).
func (h *Handler) createPersonWithMonth(ctx context.Context, p payroll.Person, shift attendance.Shift, day func(generic.TimePoint) *attendance.Record) error {
	if err := h.Store.SavePerson(ctx, p); err != nil {
		return err
	}
	if err := h.Store.SaveShift(ctx, shift); err != nil {
		return err
	}
	if err := h.Store.SetSchedule(ctx, p.ID, shift.ID, nil); err != nil {
		return err
	}

	var recs []attendance.Record
	for _, d := range scenarioMonth.Days() {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if rec := day(d); rec != nil {
			recs = append(recs, *rec)
		}
	}
	return h.Store.AddAttendance(ctx, p.ID, recs...)
}

func dayShift() attendance.Shift {
	return attendance.Shift{
		ID: "day", Name: "Day shift",
		Start: generic.NewTimeOfDay(8, 0), End: generic.NewTimeOfDay(16, 0),
		GraceMinutes: 5,
	}
}

func checkedIn(d generic.TimePoint, inH, inM, outH, outM int) *attendance.Record {
	in, out := generic.NewTimeOfDay(inH, inM), generic.NewTimeOfDay(outH, outM)
	return &attendance.Record{Date: d, CheckIn: &in, CheckOut: &out}
}
