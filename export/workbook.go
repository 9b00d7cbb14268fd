/*
Package export renders payroll results for people: spreadsheets for review
and a PDF payslip per person.

PURPOSE:
  The engine produces reports; HR reviews them in Excel before approving a
  run and hands a PDF to each person afterwards. Nothing here computes
  money, it only lays out values already on the report.

KEY CONCEPTS:
  PayrollWorkbook: One summary row per person plus one detail row per
                   deducted day (rule, kind, group, date, day name, details).
  RulesWorkbook:   The active rule set as configured, for audit.
  PayslipPDF:      A one-page payslip with the deduction breakdown.

All outputs are returned as bytes so the HTTP layer can set headers and
stream them.

SEE ALSO:
  - payroll/types.go: Report
  - api/handlers.go: export endpoints
*/
package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/payroll"
)

var ErrNothingToExport = errors.New("nothing to export")

const (
	summarySheet = "Summary"
	detailSheet  = "Deductions"
	rulesSheet   = "Rules"
)

// =============================================================================
// PAYROLL WORKBOOK
// =============================================================================

// PayrollWorkbook builds the preview workbook for a set of reports.
func PayrollWorkbook(reports []*payroll.Report) (*bytes.Buffer, error) {
	if len(reports) == 0 {
		return nil, ErrNothingToExport
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(summarySheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	if _, err := f.NewSheet(detailSheet); err != nil {
		return nil, err
	}

	header, err := headerStyle(f)
	if err != nil {
		return nil, err
	}

	summaryCols := []string{"Person ID", "Name", "Type", "Period", "Working Days",
		"Gross", "Total Deduction", "Net", "Over-deduction", "Applied", "Anomalies"}
	writeHeader(f, summarySheet, summaryCols, header)
	setWidths(f, summarySheet, []float64{12, 24, 10, 24, 13, 12, 16, 12, 15, 9, 40})

	detailCols := []string{"Person ID", "Name", "Rule", "Kind", "Trigger", "Group",
		"Date", "Day", "Details", "Group Amount"}
	writeHeader(f, detailSheet, detailCols, header)
	setWidths(f, detailSheet, []float64{12, 24, 28, 24, 30, 7, 12, 11, 30, 14})

	row, detailRow := 2, 2
	for _, r := range reports {
		setRow(f, summarySheet, row, []any{
			string(r.Person.ID),
			r.Person.Name,
			string(r.Person.Type),
			fmt.Sprintf("%s to %s", r.PeriodStart, r.PeriodEnd),
			r.WorkingDays,
			money(r.Summary.Gross),
			money(r.Summary.TotalDeduction),
			money(r.Summary.Net),
			money(r.Summary.OverDeduction),
			r.ApplyDeductions,
			anomalyText(r),
		})
		row++

		for _, d := range r.Deductions {
			for _, m := range d.Matches {
				for _, day := range m.Days {
					setRow(f, detailSheet, detailRow, []any{
						string(r.Person.ID),
						r.Person.Name,
						d.RuleName,
						d.KindLabel,
						d.Trigger,
						m.Group,
						day.Date.String(),
						day.DayName(),
						day.Details(),
						money(m.Amount),
					})
					detailRow++
				}
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write payroll workbook: %w", err)
	}
	return buf, nil
}

// =============================================================================
// RULES WORKBOOK
// =============================================================================

// RulesWorkbook lists rules in evaluation order. Failures (rules that did
// not decode) are appended with their reason so nothing is silently hidden.
func RulesWorkbook(rules []deduction.Rule, failures []deduction.RuleFailure) (*bytes.Buffer, error) {
	if len(rules) == 0 && len(failures) == 0 {
		return nil, ErrNothingToExport
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(rulesSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	header, err := headerStyle(f)
	if err != nil {
		return nil, err
	}
	cols := []string{"ID", "Name", "Penalty Type", "Kind", "Trigger", "Min", "Max", "Priority", "Active", "Error"}
	writeHeader(f, rulesSheet, cols, header)
	setWidths(f, rulesSheet, []float64{14, 28, 16, 24, 34, 10, 10, 9, 8, 40})

	row := 2
	for _, r := range deduction.SortRules(rules) {
		setRow(f, rulesSheet, row, []any{
			string(r.ID),
			r.Name,
			r.PenaltyType,
			r.Kind().Label(),
			r.Trigger.Describe(),
			bound(r.Min),
			bound(r.Max),
			r.Priority,
			r.Active,
			"",
		})
		row++
	}
	for _, fl := range failures {
		setRow(f, rulesSheet, row, []any{string(fl.RuleID), fl.RuleName, "", "", "", "", "", "", "", fl.Reason})
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write rules workbook: %w", err)
	}
	return buf, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func writeHeader(f *excelize.File, sheet string, cols []string, style int) {
	for i, c := range cols {
		f.SetCellValue(sheet, cell(i, 1), c)
	}
	f.SetCellStyle(sheet, cell(0, 1), cell(len(cols)-1, 1), style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		f.SetCellValue(sheet, cell(i, row), v)
	}
}

func setWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

// cell converts a zero-based column and one-based row to "A1" form.
func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func anomalyText(r *payroll.Report) string {
	var text string
	for i, a := range r.Anomalies {
		if i > 0 {
			text += "; "
		}
		text += fmt.Sprintf("[%s] %s", a.Severity, a.Message)
	}
	return text
}
