/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Person, attendance and rule endpoints (validation and 404s)
- Payroll preview, runs, finalization conflicts
- Payslip PDF and workbook exports
- The month-end scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(store, zaptest.NewLogger(t), Options{Workers: 2, DefaultGraceMinutes: 5})
}

func setupTestServer(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	h := setupTestHandler(t)
	srv := httptest.NewServer(NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return h, srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedAbsentTeacher creates a teacher on the day shift who attends every
// April 2025 weekday except the ones listed, plus a daily absence rule.
func seedAbsentTeacher(t *testing.T, srv *httptest.Server, id, gross string, absent ...int) {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/persons", map[string]any{
		"id": id, "name": "Teacher " + id, "type": "teacher", "gross_salary": gross,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/shifts", ShiftDTO{ID: "day", Name: "Day", Start: "08:00", End: "16:00", GraceMinutes: 5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, "/api/persons/"+id+"/schedule", ScheduleRequest{ShiftID: "day"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	skip := make(map[int]bool, len(absent))
	for _, d := range absent {
		skip[d] = true
	}
	var recs []AttendanceRecordDTO
	for _, d := range scenarioMonth.Days() {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday || skip[d.Day()] {
			continue
		}
		recs = append(recs, AttendanceRecordDTO{Date: d.String(), CheckIn: "08:00", CheckOut: "16:00"})
	}
	resp = do(t, srv, http.MethodPost, "/api/persons/"+id+"/attendance", AddAttendanceRequest{Records: recs})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/rules", `{
		"id": "absence-day",
		"name": "Unjustified absence",
		"penalty_type": "absence",
		"deduction_type": "daily_salary",
		"deduction_days": "1",
		"trigger": {"type": "day_threshold", "event": "absent"}
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// PERSONS & ATTENDANCE
// =============================================================================

func TestCreatePerson_RoundTrip(t *testing.T) {
	// GIVEN: An empty database
	_, srv := setupTestServer(t)

	// WHEN: Creating a person and fetching it back
	resp := do(t, srv, http.MethodPost, "/api/persons", map[string]any{
		"id": "emp-1", "name": "Lea", "type": "employee", "gross_salary": 2500,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/persons/emp-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[PersonDTO](t, resp)

	// THEN: The salary comes back with two decimals
	assert.Equal(t, "Lea", got.Name)
	assert.Equal(t, "employee", got.Type)
	assert.Equal(t, "2500.00", got.GrossSalary)
}

func TestCreatePerson_Validation(t *testing.T) {
	_, srv := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"name": "X", "type": "employee", "gross_salary": "10"}`},
		{"unknown type", `{"id": "x", "name": "X", "type": "contractor", "gross_salary": "10"}`},
		{"negative salary", `{"id": "x", "name": "X", "type": "employee", "gross_salary": "-1"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, "/api/persons", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetPerson_NotFound(t *testing.T) {
	_, srv := setupTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/persons/ghost", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, decode[ErrorResponse](t, resp).Error)
}

func TestAttendance_AddAndClassify(t *testing.T) {
	// GIVEN: A teacher absent on April 22
	_, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	// WHEN: Reading raw records and classified days
	resp := do(t, srv, http.MethodGet, "/api/persons/t-1/attendance?year=2025&month=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := decode[struct {
		Records []AttendanceRecordDTO `json:"records"`
	}](t, resp)

	resp = do(t, srv, http.MethodGet, "/api/persons/t-1/days?year=2025&month=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	days := decode[struct {
		WorkingDays int `json:"working_days"`
		Days        []struct {
			Date   string `json:"date"`
			Status string `json:"status"`
		} `json:"days"`
	}](t, resp)

	// THEN: 21 records, 30 days, 22 working days with one absence
	assert.Len(t, raw.Records, 21)
	assert.Len(t, days.Days, 30)
	assert.Equal(t, 22, days.WorkingDays)
	for _, d := range days.Days {
		if d.Date == "2025-04-22" {
			assert.Equal(t, "absent", d.Status)
		}
	}
}

func TestAttendance_Errors(t *testing.T) {
	_, srv := setupTestServer(t)

	t.Run("unknown person", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/api/persons/ghost/attendance", AddAttendanceRequest{
			Records: []AttendanceRecordDTO{{Date: "2025-04-01", CheckIn: "08:00"}},
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad clock", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/api/persons/ghost/attendance", AddAttendanceRequest{
			Records: []AttendanceRecordDTO{{Date: "2025-04-01", CheckIn: "8h"}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad period", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/api/persons/ghost/days?year=2025&month=13", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// =============================================================================
// RULES
// =============================================================================

func TestCreateRule_InvalidConfig(t *testing.T) {
	_, srv := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown deduction type", `{"id": "r", "name": "R", "deduction_type": "bonus", "deduction_amount": "1", "trigger": {"type": "day_threshold", "event": "absent"}}`},
		{"min above max", `{"id": "r", "name": "R", "deduction_type": "fixed", "deduction_amount": "1", "min_deduction": "10", "max_deduction": "5", "trigger": {"type": "day_threshold", "event": "late"}}`},
		{"every_nth without count", `{"id": "r", "name": "R", "deduction_type": "fixed", "deduction_amount": "1", "trigger": {"type": "every_nth", "event": "late"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	resp := do(t, srv, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]RuleDTO](t, resp))
}

func TestRules_CreateListDelete(t *testing.T) {
	// GIVEN: A saved rule, saved twice
	_, srv := setupTestServer(t)
	body := `{"id": "late-fixed", "name": "Late", "deduction_type": "fixed", "deduction_amount": "10", "trigger": {"type": "day_threshold", "event": "late"}}`
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/rules", body).StatusCode)
	resp := do(t, srv, http.MethodPost, "/api/rules", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// THEN: The version is bumped and the config is echoed back
	created := decode[RuleDTO](t, resp)
	assert.Equal(t, 2, created.Version)
	assert.True(t, created.Active)
	assert.Contains(t, string(created.Config), `"deduction_type":"fixed"`)

	// WHEN: Deleting it twice
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/rules/late-fixed", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/rules/late-fixed", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/rules/late-fixed", nil).StatusCode)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestPreviewPayroll(t *testing.T) {
	// GIVEN: A teacher earning 1000 absent one day in a 22 working day month
	h, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	// WHEN: Previewing April
	resp := do(t, srv, http.MethodPost, "/api/payroll/preview", PayrollRequest{Year: 2025, Month: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[payroll.Result](t, resp)

	// THEN: One day of salary is deducted and nothing is stored
	require.Len(t, res.Reports, 1)
	rep := res.Reports[0]
	assert.Equal(t, 22, rep.WorkingDays)
	assert.True(t, dec("45.45").Equal(rep.TotalDeduction), "got %s", rep.TotalDeduction)
	assert.True(t, dec("954.55").Equal(rep.Summary.Net), "got %s", rep.Summary.Net)

	runs, err := h.Store.GetPayrollRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPreviewPayroll_WithoutApplying(t *testing.T) {
	_, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	off := false
	resp := do(t, srv, http.MethodPost, "/api/payroll/preview", PayrollRequest{Year: 2025, Month: 4, ApplyDeductions: &off})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[payroll.Result](t, resp)

	require.Len(t, res.Reports, 1)
	assert.True(t, dec("45.45").Equal(res.Reports[0].TotalDeduction))
	assert.True(t, dec("1000").Equal(res.Reports[0].Summary.Net))
	assert.False(t, res.Reports[0].Summary.Applied)
}

func TestPreviewPayroll_Errors(t *testing.T) {
	_, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000")

	t.Run("invalid month", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/api/payroll/preview", PayrollRequest{Year: 2025, Month: 0})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown person", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/api/payroll/preview", PayrollRequest{Year: 2025, Month: 4, PersonIDs: []string{"ghost"}})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("person_ids on a run", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/api/payroll/runs", PayrollRequest{Year: 2025, Month: 4, PersonIDs: []string{"t-1"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPayrollRun_StoresPayslipsAndFinalizes(t *testing.T) {
	// GIVEN: A teacher absent one day
	_, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	// WHEN: Running April as a draft, then as final
	resp := do(t, srv, http.MethodPost, "/api/payroll/runs", PayrollRequest{Year: 2025, Month: 4})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	draft := decode[PayrollRunResponse](t, resp)
	assert.Equal(t, sqlite.RunCompleted, draft.Run.Status)
	assert.Equal(t, 1, draft.Run.Reports)

	resp = do(t, srv, http.MethodPost, "/api/payroll/runs", PayrollRequest{Year: 2025, Month: 4, Finalize: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// THEN: One final payslip with the stored totals
	resp = do(t, srv, http.MethodGet, "/api/payroll/payslips?year=2025&month=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slips := decode[struct {
		Payslips []PayslipDTO `json:"payslips"`
	}](t, resp).Payslips
	require.Len(t, slips, 1)
	assert.Equal(t, sqlite.PayslipFinal, slips[0].Status)
	assert.Equal(t, "45.45", slips[0].TotalDeductions)
	assert.Equal(t, "954.55", slips[0].NetSalary)

	// WHEN: Running again after finalization
	resp = do(t, srv, http.MethodPost, "/api/payroll/runs", PayrollRequest{Year: 2025, Month: 4})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	again := decode[PayrollRunResponse](t, resp)

	// THEN: The final payslip stands and the run still completes
	assert.Equal(t, sqlite.RunCompleted, again.Run.Status)
	assert.Equal(t, 1, again.Run.Reports)
	assert.Zero(t, again.Run.Failures)

	resp = do(t, srv, http.MethodGet, "/api/payroll/payslips?year=2025&month=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slips = decode[struct {
		Payslips []PayslipDTO `json:"payslips"`
	}](t, resp).Payslips
	require.Len(t, slips, 1)
	assert.Equal(t, sqlite.PayslipFinal, slips[0].Status)

	resp = do(t, srv, http.MethodGet, "/api/payroll/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decode[struct {
		Runs []PayrollRunDTO `json:"runs"`
	}](t, resp).Runs
	assert.Len(t, runs, 3)

	resp = do(t, srv, http.MethodGet, "/api/payroll/runs?status="+sqlite.RunPartial, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	partial := decode[struct {
		Runs []PayrollRunDTO `json:"runs"`
	}](t, resp).Runs
	assert.Empty(t, partial)
}

func TestPayslipPDF(t *testing.T) {
	// GIVEN: A stored payslip
	h, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/payroll/runs", PayrollRequest{Year: 2025, Month: 4}).StatusCode)

	slips, err := h.Store.ListPayslips(context.Background(), scenarioMonth)
	require.NoError(t, err)
	require.Len(t, slips, 1)

	// WHEN: Downloading it as a PDF
	resp := do(t, srv, http.MethodGet, "/api/payroll/payslips/"+slips[0].ID+"/pdf", nil)

	// THEN: A PDF attachment named after the person and month
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "payslip-t-1-2025-04.pdf")
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(body.String(), "%PDF"))

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/payroll/payslips/missing/pdf", nil).StatusCode)
}

func TestExports(t *testing.T) {
	_, srv := setupTestServer(t)

	t.Run("nothing to export", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/api/payroll/export?year=2025&month=4", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	tests := []struct {
		path     string
		filename string
	}{
		{"/api/payroll/export?year=2025&month=4", "payroll-2025-04.xlsx"},
		{"/api/rules/export", "deduction-rules.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
			assert.Contains(t, resp.Header.Get("Content-Disposition"), tt.filename)
			assert.NotEqual(t, "0", resp.Header.Get("Content-Length"))
		})
	}
}

func TestHolidays_ReduceWorkingDays(t *testing.T) {
	// GIVEN: Easter Monday registered as a holiday
	_, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 21)
	resp := do(t, srv, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2025-04-21", Name: "Easter Monday"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	holiday := decode[HolidayDTO](t, resp)

	// WHEN: Previewing April
	resp = do(t, srv, http.MethodPost, "/api/payroll/preview", PayrollRequest{Year: 2025, Month: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[payroll.Result](t, resp)

	// THEN: The missing record on the holiday is not an absence
	require.Len(t, res.Reports, 1)
	assert.Equal(t, 21, res.Reports[0].WorkingDays)
	assert.True(t, res.Reports[0].TotalDeduction.IsZero())

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/holidays/"+holiday.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/holidays/"+holiday.ID, nil).StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", sqlite.ErrPayslipFinal), http.StatusConflict},
		{fmt.Errorf("load: %w", sqlite.ErrShiftNotFound), http.StatusNotFound},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestScheduler_RunsPreviousMonthOnce(t *testing.T) {
	// GIVEN: A teacher with April data and a clock in May
	h, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)

	ps := NewPayrollScheduler(h)
	ps.Now = func() time.Time { return time.Date(2025, time.May, 3, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	// WHEN: Checking twice
	first := ps.RunNow(ctx)
	second := ps.RunNow(ctx)

	// THEN: April runs once and is stored as drafts
	assert.True(t, first)
	assert.False(t, second)

	done, err := h.Store.IsPeriodComplete(ctx, scenarioMonth)
	require.NoError(t, err)
	assert.True(t, done)

	slips, err := h.Store.ListPayslips(ctx, scenarioMonth)
	require.NoError(t, err)
	require.Len(t, slips, 1)
	assert.Equal(t, sqlite.PayslipDraft, slips[0].Status)
}

func TestScheduler_CompletesAfterPartialFinalRun(t *testing.T) {
	// GIVEN: A finalized April run where t-2 failed on a negative salary
	h, srv := setupTestServer(t)
	seedAbsentTeacher(t, srv, "t-1", "1000", 22)
	ctx := context.Background()
	require.NoError(t, h.Store.SavePerson(ctx, payroll.Person{
		ID: "t-2", Name: "Teacher t-2", Type: "teacher", GrossSalary: dec("-1"),
	}))

	_, run, err := h.RunPayroll(ctx, scenarioMonth, true, true)
	require.NoError(t, err)
	require.Equal(t, sqlite.RunPartial, run.Status)
	assert.Contains(t, run.Error, "t-2")

	// WHEN: The salary is fixed and the scheduler checks three times
	require.NoError(t, h.Store.SavePerson(ctx, payroll.Person{
		ID: "t-2", Name: "Teacher t-2", Type: "teacher", GrossSalary: dec("1200"),
	}))
	ps := NewPayrollScheduler(h)
	ps.Now = func() time.Time { return time.Date(2025, time.May, 3, 9, 0, 0, 0, time.UTC) }
	checks := []bool{ps.RunNow(ctx), ps.RunNow(ctx), ps.RunNow(ctx)}

	// THEN: Only the first check runs; t-1's final payslip is kept
	assert.Equal(t, []bool{true, false, false}, checks)

	done, err := h.Store.IsPeriodComplete(ctx, scenarioMonth)
	require.NoError(t, err)
	assert.True(t, done)

	runs, err := h.Store.GetPayrollRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	slips, err := h.Store.ListPayslips(ctx, scenarioMonth)
	require.NoError(t, err)
	require.Len(t, slips, 2)
	status := map[string]string{}
	for _, sl := range slips {
		status[string(sl.PersonID)] = sl.Status
	}
	assert.Equal(t, sqlite.PayslipFinal, status["t-1"])
	assert.Equal(t, sqlite.PayslipDraft, status["t-2"])
}

func TestScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)

	ps := NewPayrollScheduler(h)
	ps.CheckInterval = time.Hour
	ps.Now = func() time.Time { return time.Date(2025, time.May, 3, 9, 0, 0, 0, time.UTC) }

	ps.Start()
	ps.Stop()

	assert.Equal(t, time.Date(2025, time.May, 3, 10, 0, 0, 0, time.UTC), ps.GetNextRunTime())
}
