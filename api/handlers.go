/*
handlers.go - HTTP API handlers for the payroll deduction engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the store, loader and runner.

ENDPOINTS:
  Persons:
    GET    /api/persons                   List persons
    POST   /api/persons                   Create or update a person
    GET    /api/persons/{id}              Get a person
    GET    /api/persons/{id}/attendance   Raw records (?year=&month=)
    POST   /api/persons/{id}/attendance   Append raw records
    GET    /api/persons/{id}/days         Classified days (?year=&month=)
    PUT    /api/persons/{id}/schedule     Replace shift and timetable

  Shifts:
    GET    /api/shifts                    List shifts
    POST   /api/shifts                    Create or update a shift

  Rules:
    GET    /api/rules                     List rules (with decode errors)
    POST   /api/rules                     Create or update a rule from JSON
    GET    /api/rules/export              Active rules as .xlsx
    GET    /api/rules/{id}                Get a rule
    DELETE /api/rules/{id}                Delete a rule

  Holidays:
    GET    /api/holidays                  List (?company_id=)
    POST   /api/holidays                  Create
    DELETE /api/holidays/{id}             Delete

  Payroll:
    POST   /api/payroll/preview           Compute, don't persist
    POST   /api/payroll/runs              Compute and store payslips
    GET    /api/payroll/runs              Run history (?status=)
    GET    /api/payroll/payslips          Stored payslips (?year=&month=)
    GET    /api/payroll/payslips/{id}/pdf Payslip PDF
    GET    /api/payroll/export            Preview workbook (?year=&month=)

  Scenarios (scenarios.go):
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Reset and load one
    POST   /api/scenarios/reset           Clear all data

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad rule configuration
  - 404: Resource not found
  - 409: Conflict (payslip already final)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Automatic month-end runs
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options tune how the handler computes payroll.
type Options struct {
	Workers             int
	DefaultGraceMinutes int
	CompanyID           string
	Engine              payroll.Options
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	RuleFactory *factory.RuleFactory
	Runner      *payroll.Runner
	Logger      *zap.Logger

	opts Options
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := payroll.NewEngine(opts.Engine)
	return &Handler{
		Store:       store,
		RuleFactory: factory.NewRuleFactory(),
		Runner:      payroll.NewRunner(engine, opts.Workers, logger),
		Logger:      logger,
		opts:        opts,
	}
}

// loader builds a loader over a holiday snapshot taken now, so every
// person in one run is classified against the same calendar.
func (h *Handler) loader(ctx context.Context) (*payroll.Loader, error) {
	cal, err := h.Store.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading holidays: %w", err)
	}
	c := attendance.NewClassifier()
	c.Holidays = cal
	c.CompanyID = h.opts.CompanyID
	c.DefaultGraceMinutes = h.opts.DefaultGraceMinutes
	return payroll.NewLoader(h.Store, c), nil
}

// compute loads inputs for period (all persons, or only ids) and runs them.
func (h *Handler) compute(ctx context.Context, period generic.Period, apply bool, ids []string) (*payroll.Result, error) {
	loader, err := h.loader(ctx)
	if err != nil {
		return nil, err
	}

	var inputs []payroll.Input
	if len(ids) == 0 {
		inputs, err = loader.Load(ctx, period, apply)
		if err != nil {
			return nil, err
		}
	} else {
		for _, id := range ids {
			in, err := loader.LoadPerson(ctx, generic.PersonID(id), period, apply)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
	}

	return h.Runner.Run(ctx, period, inputs)
}

// RunPayroll computes period for everyone and records the run and its
// payslips.
func (h *Handler) RunPayroll(ctx context.Context, period generic.Period, apply, finalize bool) (*payroll.Result, sqlite.PayrollRun, error) {
	res, err := h.compute(ctx, period, apply, nil)
	if err != nil {
		run := sqlite.PayrollRun{
			ID:              uuid.NewString(),
			Period:          period,
			Status:          sqlite.RunFailed,
			ApplyDeductions: apply,
			Error:           err.Error(),
		}
		if saveErr := h.Store.SavePayrollRun(ctx, run); saveErr != nil {
			h.Logger.Error("failed to record failed run", zap.Error(saveErr))
		}
		return nil, run, err
	}

	status := sqlite.PayslipDraft
	if finalize {
		status = sqlite.PayslipFinal
	}
	run, err := h.Store.RecordRun(ctx, res, apply, status)
	if err != nil {
		return res, run, err
	}

	h.Logger.Info("payroll run recorded",
		zap.String("run_id", run.ID),
		zap.Stringer("period", period),
		zap.String("status", run.Status),
		zap.Int("reports", run.Reports),
		zap.Int("failures", run.Failures),
	)
	return res, run, nil
}

// =============================================================================
// PERSON HANDLERS
// =============================================================================

// ListPersons returns all persons.
func (h *Handler) ListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.Store.ListPersons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list persons", err)
		return
	}

	dtos := make([]PersonDTO, len(persons))
	for i, p := range persons {
		dtos[i] = toPersonDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPerson returns a single person.
func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPerson(r.Context(), generic.PersonID(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "Failed to get person", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(*p))
}

// CreatePerson creates or updates a person.
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "ID and name are required", nil)
		return
	}
	if !generic.PersonType(req.Type).Valid() {
		writeError(w, http.StatusBadRequest, "Type must be employee or teacher", nil)
		return
	}
	if req.GrossSalary.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid gross_salary", generic.ErrNegativeSalary)
		return
	}

	p := payroll.Person{
		ID:          generic.PersonID(req.ID),
		Name:        req.Name,
		Type:        generic.PersonType(req.Type),
		GrossSalary: req.GrossSalary,
		CompanyID:   req.CompanyID,
	}
	if err := h.Store.SavePerson(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save person", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPersonDTO(p))
}

// GetAttendance returns a person's raw records for a month.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.PersonID(chi.URLParam(r, "id"))

	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	if _, err := h.Store.GetPerson(ctx, id); err != nil {
		writeStoreError(w, "Failed to get person", err)
		return
	}

	recs, err := h.Store.LoadAttendance(ctx, id, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}

	dtos := make([]AttendanceRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": dtos})
}

// AddAttendance appends raw records for a person.
func (h *Handler) AddAttendance(w http.ResponseWriter, r *http.Request) {
	id := generic.PersonID(chi.URLParam(r, "id"))

	var req AddAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "At least one record is required", nil)
		return
	}

	recs := make([]attendance.Record, 0, len(req.Records))
	for _, dto := range req.Records {
		rec, err := dto.toRecord()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid record", err)
			return
		}
		recs = append(recs, rec)
	}

	if err := h.Store.AddAttendance(r.Context(), id, recs...); err != nil {
		writeStoreError(w, "Failed to add attendance", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "count": len(recs)})
}

// GetDays returns a person's classified days for a month.
func (h *Handler) GetDays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	p, err := h.Store.GetPerson(ctx, generic.PersonID(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "Failed to get person", err)
		return
	}
	loader, err := h.loader(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to prepare classifier", err)
		return
	}

	days, err := loader.Days(ctx, *p, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to classify attendance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":       period,
		"working_days": attendance.WorkingDays(days),
		"days":         days,
	})
}

// SetSchedule replaces a person's shift and timetable.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	id := generic.PersonID(chi.URLParam(r, "id"))

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]attendance.TimetableEntry, 0, len(req.Timetable))
	for _, dto := range req.Timetable {
		e, err := dto.toEntry()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid timetable entry", err)
			return
		}
		entries = append(entries, e)
	}

	if err := h.Store.SetSchedule(r.Context(), id, req.ShiftID, entries); err != nil {
		writeStoreError(w, "Failed to set schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// ListShifts returns all shifts.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.Store.ListShifts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shifts", err)
		return
	}

	dtos := make([]ShiftDTO, len(shifts))
	for i, s := range shifts {
		dtos[i] = toShiftDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateShift creates or updates a shift.
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required", nil)
		return
	}

	start, err := generic.ParseTimeOfDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use HH:MM)", err)
		return
	}
	end, err := generic.ParseTimeOfDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use HH:MM)", err)
		return
	}
	if req.GraceMinutes < 0 {
		writeError(w, http.StatusBadRequest, "grace_minutes must not be negative", nil)
		return
	}

	shift := attendance.Shift{ID: req.ID, Name: req.Name, Start: start, End: end, GraceMinutes: req.GraceMinutes}
	if err := h.Store.SaveShift(r.Context(), shift); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save shift", err)
		return
	}

	writeJSON(w, http.StatusCreated, toShiftDTO(shift))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns all rules, including inactive and undecodable ones.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, len(records))
	for i, rec := range records {
		_, decodeErr := h.Store.DecodeRule(rec)
		dtos[i] = toRuleDTO(rec, decodeErr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRule returns a single rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Failed to get rule", err)
		return
	}
	_, decodeErr := h.Store.DecodeRule(*rec)
	writeJSON(w, http.StatusOK, toRuleDTO(*rec, decodeErr))
}

// CreateRule validates a rule config and stores it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RuleFactory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}
	if err := h.Store.SaveRule(ctx, rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}

	rec, err := h.Store.GetRule(ctx, string(rule.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(*rec, nil))
}

// DeleteRule deletes a rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "Failed to delete rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// ExportRules streams the active rule set as a workbook.
func (h *Handler) ExportRules(w http.ResponseWriter, r *http.Request) {
	rules, failures, err := h.Store.LoadRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rules", err)
		return
	}

	buf, err := export.RulesWorkbook(rules, failures)
	if err != nil {
		writeExportError(w, err)
		return
	}
	writeFile(w, xlsxContentType, "deduction-rules.xlsx", buf.Bytes())
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns all holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")

	holidays, err := h.Store.GetAllHolidays(r.Context(), companyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}

	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		ID:        uuid.NewString(),
		CompanyID: req.CompanyID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}

	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// PreviewPayroll computes reports without storing anything.
// POST /api/payroll/preview
func (h *Handler) PreviewPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	res, err := h.compute(r.Context(), period, req.apply(), req.PersonIDs)
	if err != nil {
		writeStoreError(w, "Failed to compute payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreatePayrollRun computes everyone for a month and stores payslips.
// POST /api/payroll/runs
func (h *Handler) CreatePayrollRun(w http.ResponseWriter, r *http.Request) {
	var req PayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	if len(req.PersonIDs) > 0 {
		writeError(w, http.StatusBadRequest, "person_ids is only supported for previews", nil)
		return
	}

	res, run, err := h.RunPayroll(r.Context(), period, req.apply(), req.Finalize)
	if err != nil {
		writeStoreError(w, "Failed to run payroll", err)
		return
	}
	writeJSON(w, http.StatusCreated, PayrollRunResponse{Run: toRunDTO(run), Result: res})
}

// ListPayrollRuns returns run history.
// GET /api/payroll/runs
func (h *Handler) ListPayrollRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.GetPayrollRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payroll runs", err)
		return
	}

	dtos := make([]PayrollRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// ListPayslips returns stored payslips for a month.
// GET /api/payroll/payslips
func (h *Handler) ListPayslips(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	slips, err := h.Store.ListPayslips(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payslips", err)
		return
	}

	dtos := make([]PayslipDTO, 0, len(slips))
	for _, s := range slips {
		dtos = append(dtos, toPayslipDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payslips": dtos})
}

// PayslipPDF renders a stored payslip.
// GET /api/payroll/payslips/{id}/pdf
func (h *Handler) PayslipPDF(w http.ResponseWriter, r *http.Request) {
	slip, err := h.Store.GetPayslip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Failed to get payslip", err)
		return
	}
	rep, err := slip.Report()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Stored payslip is unreadable", err)
		return
	}

	data, err := export.PayslipPDF(rep)
	if err != nil {
		writeExportError(w, err)
		return
	}
	name := fmt.Sprintf("payslip-%s-%s.pdf", slip.PersonID, slip.Period.Start.Time.Format("2006-01"))
	writeFile(w, "application/pdf", name, data)
}

// ExportPayroll computes a preview for a month and streams it as a workbook.
// GET /api/payroll/export
func (h *Handler) ExportPayroll(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	apply := r.URL.Query().Get("apply") != "false"

	res, err := h.compute(r.Context(), period, apply, nil)
	if err != nil {
		writeStoreError(w, "Failed to compute payroll", err)
		return
	}

	buf, err := export.PayrollWorkbook(res.Reports)
	if err != nil {
		writeExportError(w, err)
		return
	}
	name := fmt.Sprintf("payroll-%s.xlsx", period.Start.Time.Format("2006-01"))
	writeFile(w, xlsxContentType, name, buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError picks the status from the error's kind.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err),
		errors.Is(err, sqlite.ErrShiftNotFound),
		errors.Is(err, sqlite.ErrHolidayNotFound),
		errors.Is(err, sqlite.ErrPayslipNotFound):
		return http.StatusNotFound
	case errors.Is(err, sqlite.ErrPayslipFinal):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeExportError(w http.ResponseWriter, err error) {
	if errors.Is(err, export.ErrNothingToExport) {
		writeError(w, http.StatusNotFound, "Nothing to export", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to export", err)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// queryPeriod reads ?year=&month=.
func queryPeriod(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: invalid year %q", generic.ErrInvalidPeriod, q.Get("year"))
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: invalid month %q", generic.ErrInvalidPeriod, q.Get("month"))
	}
	return monthPeriod(year, month)
}
