/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Persons:    PersonDTO, CreatePersonRequest
  Attendance: AttendanceRecordDTO, AddAttendanceRequest
  Schedules:  ShiftDTO, TimetableEntryDTO, ScheduleRequest
  Rules:      RuleDTO (wraps factory.RuleJSON)
  Holidays:   HolidayDTO, CreateHolidayRequest
  Payroll:    PayrollRequest, PayrollRunDTO, PayslipDTO

MONEY:
  Amounts go out as strings with two decimals ("45.45") so clients never
  see float rounding. Requests accept either strings or numbers.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// PERSONS
// =============================================================================

// PersonDTO represents a person in API responses.
type PersonDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	GrossSalary string `json:"gross_salary"`
	CompanyID   string `json:"company_id,omitempty"`
}

// CreatePersonRequest creates or updates a person.
type CreatePersonRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"` // employee, teacher
	GrossSalary decimal.Decimal `json:"gross_salary"`
	CompanyID   string          `json:"company_id"`
}

// =============================================================================
// ATTENDANCE & SCHEDULES
// =============================================================================

// AttendanceRecordDTO is one raw attendance row. Times are "HH:MM".
type AttendanceRecordDTO struct {
	Date     string `json:"date"`
	CheckIn  string `json:"check_in,omitempty"`
	CheckOut string `json:"check_out,omitempty"`
	OnLeave  bool   `json:"on_leave,omitempty"`
	Note     string `json:"note,omitempty"`
}

// AddAttendanceRequest appends raw records for one person.
type AddAttendanceRequest struct {
	Records []AttendanceRecordDTO `json:"records"`
}

// ShiftDTO is a named working window.
type ShiftDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Start        string `json:"start"`
	End          string `json:"end"`
	GraceMinutes int    `json:"grace_minutes"`
}

// TimetableEntryDTO overrides the shift for one weekday ("monday".."sunday").
type TimetableEntryDTO struct {
	Weekday      string `json:"weekday"`
	Start        string `json:"start"`
	End          string `json:"end"`
	GraceMinutes int    `json:"grace_minutes"`
}

// ScheduleRequest replaces a person's schedule. An empty shift_id clears
// the shift.
type ScheduleRequest struct {
	ShiftID   string              `json:"shift_id"`
	Timetable []TimetableEntryDTO `json:"timetable"`
}

// =============================================================================
// RULES
// =============================================================================

// RuleDTO is a stored rule. Config is the rule as configured; Error is set
// when the stored config no longer decodes.
type RuleDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	PenaltyType string          `json:"penalty_type,omitempty"`
	Priority    int             `json:"priority"`
	Active      bool            `json:"active"`
	Version     int             `json:"version"`
	Config      json.RawMessage `json:"config"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type CreateHolidayRequest struct {
	CompanyID string `json:"company_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// PAYROLL
// =============================================================================

// PayrollRequest selects the month to compute. ApplyDeductions defaults to
// true; PersonIDs limits a preview to some persons. Finalize stores the
// payslips as final so later runs cannot overwrite them.
type PayrollRequest struct {
	Year            int      `json:"year"`
	Month           int      `json:"month"`
	ApplyDeductions *bool    `json:"apply_deductions,omitempty"`
	PersonIDs       []string `json:"person_ids,omitempty"`
	Finalize        bool     `json:"finalize,omitempty"`
}

func (r PayrollRequest) period() (generic.Period, error) {
	return monthPeriod(r.Year, r.Month)
}

func (r PayrollRequest) apply() bool {
	return r.ApplyDeductions == nil || *r.ApplyDeductions
}

// PayrollRunDTO is a stored run record.
type PayrollRunDTO struct {
	ID              string `json:"id"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	Status          string `json:"status"`
	ApplyDeductions bool   `json:"apply_deductions"`
	Persons         int    `json:"persons"`
	Reports         int    `json:"reports"`
	Failures        int    `json:"failures"`
	Skipped         int    `json:"skipped"`
	Error           string `json:"error,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// PayrollRunResponse is returned by POST /api/payroll/runs.
type PayrollRunResponse struct {
	Run    PayrollRunDTO   `json:"run"`
	Result *payroll.Result `json:"result"`
}

// PayslipDTO is a stored payslip without the full report.
type PayslipDTO struct {
	ID              string `json:"id"`
	RunID           string `json:"run_id"`
	PersonID        string `json:"person_id"`
	PersonName      string `json:"person_name"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	GrossSalary     string `json:"gross_salary"`
	TotalDeductions string `json:"total_deductions"`
	NetSalary       string `json:"net_salary"`
	OverDeduction   string `json:"over_deduction"`
	Status          string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPersonDTO(p payroll.Person) PersonDTO {
	return PersonDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Type:        string(p.Type),
		GrossSalary: p.GrossSalary.StringFixed(2),
		CompanyID:   p.CompanyID,
	}
}

func toShiftDTO(s attendance.Shift) ShiftDTO {
	return ShiftDTO{
		ID:           s.ID,
		Name:         s.Name,
		Start:        s.Start.String(),
		End:          s.End.String(),
		GraceMinutes: s.GraceMinutes,
	}
}

func toRecordDTO(rec attendance.Record) AttendanceRecordDTO {
	dto := AttendanceRecordDTO{Date: rec.Date.String(), OnLeave: rec.OnLeave, Note: rec.Note}
	if rec.CheckIn != nil {
		dto.CheckIn = rec.CheckIn.String()
	}
	if rec.CheckOut != nil {
		dto.CheckOut = rec.CheckOut.String()
	}
	return dto
}

func (d AttendanceRecordDTO) toRecord() (attendance.Record, error) {
	date, err := generic.ParseDate(d.Date)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", d.Date, err)
	}
	rec := attendance.Record{Date: date, OnLeave: d.OnLeave, Note: d.Note}
	if rec.CheckIn, err = optionalClock(d.CheckIn); err != nil {
		return attendance.Record{}, err
	}
	if rec.CheckOut, err = optionalClock(d.CheckOut); err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

func (d TimetableEntryDTO) toEntry() (attendance.TimetableEntry, error) {
	wd, err := parseWeekday(d.Weekday)
	if err != nil {
		return attendance.TimetableEntry{}, err
	}
	start, err := generic.ParseTimeOfDay(d.Start)
	if err != nil {
		return attendance.TimetableEntry{}, err
	}
	end, err := generic.ParseTimeOfDay(d.End)
	if err != nil {
		return attendance.TimetableEntry{}, err
	}
	return attendance.TimetableEntry{Weekday: wd, Start: start, End: end, GraceMinutes: d.GraceMinutes}, nil
}

func toRuleDTO(rec sqlite.RuleRecord, decodeErr error) RuleDTO {
	dto := RuleDTO{
		ID:          rec.ID,
		Name:        rec.Name,
		PenaltyType: rec.PenaltyType,
		Priority:    rec.Priority,
		Active:      rec.Active,
		Version:     rec.Version,
		Config:      json.RawMessage(rec.ConfigJSON),
	}
	if !json.Valid(dto.Config) {
		dto.Config = nil
	}
	if decodeErr != nil {
		dto.Error = decodeErr.Error()
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		CompanyID: h.CompanyID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

func toRunDTO(run sqlite.PayrollRun) PayrollRunDTO {
	dto := PayrollRunDTO{
		ID:              run.ID,
		PeriodStart:     run.Period.Start.String(),
		PeriodEnd:       run.Period.End.String(),
		Status:          run.Status,
		ApplyDeductions: run.ApplyDeductions,
		Persons:         run.Persons,
		Reports:         run.Reports,
		Failures:        run.Failures,
		Skipped:         run.Skipped,
		Error:           run.Error,
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toPayslipDTO(p sqlite.Payslip) PayslipDTO {
	return PayslipDTO{
		ID:              p.ID,
		RunID:           p.RunID,
		PersonID:        string(p.PersonID),
		PersonName:      p.PersonName,
		PeriodStart:     p.Period.Start.String(),
		PeriodEnd:       p.Period.End.String(),
		GrossSalary:     p.GrossSalary.StringFixed(2),
		TotalDeductions: p.TotalDeductions.StringFixed(2),
		NetSalary:       p.NetSalary.StringFixed(2),
		OverDeduction:   p.OverDeduction.StringFixed(2),
		Status:          p.Status,
	}
}

func optionalClock(s string) (*generic.TimeOfDay, error) {
	if s == "" {
		return nil, nil
	}
	t, err := generic.ParseTimeOfDay(s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q (use HH:MM): %w", s, err)
	}
	return &t, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), s) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func monthPeriod(year, month int) (generic.Period, error) {
	if year < 1 || month < 1 || month > 12 {
		return generic.Period{}, fmt.Errorf("%w: year and month (1-12) are required", generic.ErrInvalidPeriod)
	}
	return generic.MonthPeriod(year, time.Month(month)), nil
}
