package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// PayslipPDF renders a one-page A4 payslip for a report.
func PayslipPDF(r *payroll.Report) ([]byte, error) {
	if r == nil {
		return nil, ErrNothingToExport
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Name: %s (%s)", r.Person.Name, r.Person.Type))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("ID: %s", r.Person.ID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", r.PeriodStart, r.PeriodEnd))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Working days: %d", r.WorkingDays))
	pdf.Ln(10)

	// Deduction table
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(70, 7, "Rule", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 7, "Kind", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "Days", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "R", true, 0, "")
	pdf.SetTextColor(0, 0, 0)

	pdf.SetFont("Helvetica", "", 10)
	if len(r.Deductions) == 0 {
		pdf.CellFormat(180, 7, "No deductions", "1", 1, "C", false, 0, "")
	}
	for _, d := range r.Deductions {
		pdf.CellFormat(70, 7, d.RuleName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, d.KindLabel, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", d.DayCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, money(d.Amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	line(pdf, "Gross", r.Summary.Gross)
	line(pdf, "Deductions", r.Summary.TotalDeduction)
	if r.Summary.OverDeduction.IsPositive() {
		line(pdf, "Exceeds gross by", r.Summary.OverDeduction)
	}
	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Net", r.Summary.Net)

	if !r.ApplyDeductions {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Cell(0, 6, "Preview: deductions are shown but not applied to net salary.")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render payslip for %s: %w", r.Person.ID, err)
	}
	return buf.Bytes(), nil
}

func line(pdf *gofpdf.Fpdf, label string, v decimal.Decimal) {
	pdf.CellFormat(60, 7, label+":", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, money(v), "", 1, "R", false, 0, "")
}

func money(v decimal.Decimal) string { return v.StringFixed(2) }

func bound(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return money(*v)
}
