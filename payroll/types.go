/*
Package payroll turns a person's classified attendance and the active
deduction rules into a deduction report and a net salary.

KEY CONCEPTS:
  - Input: Everything one person's computation needs, pre-loaded
  - Engine: Pure per (person, period) computation
  - Report: Deductions, totals, summary and anomalies for one person
  - Runner: Fans a whole payroll run out over a bounded worker pool
  - Loader: Builds Inputs from a Source (database, memory)

PIPELINE:
  Source ──Loader──▶ []Input ──Runner──▶ Engine.Compute per person ──▶ Result

  Engine.Compute:
    days ──deduction.Evaluate──▶ matches ──deduction.Aggregate──▶ total
         ──Summarize──▶ net salary + top deductions + anomalies

DETERMINISM:
  The same Input always yields the same Report, byte for byte once
  serialized. Days are sorted by date, rules by (priority, id), and every
  slice in the Report follows one of those orders.

SEE ALSO:
  - deduction/: Rule model, evaluator, aggregator
  - attendance/: Day classification
  - store/sqlite: Persistent Source
*/
package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// INPUT
// =============================================================================

// Person is the payee of one report.
type Person struct {
	ID          generic.PersonID   `json:"id"`
	Name        string             `json:"name"`
	Type        generic.PersonType `json:"type"`
	GrossSalary decimal.Decimal    `json:"gross_salary"`
	CompanyID   string             `json:"company_id,omitempty"`
}

// Input is one person's pre-loaded computation input.
type Input struct {
	Person Person
	Period generic.Period

	// Days must hold at most one entry per date. Days outside Period are
	// ignored.
	Days []attendance.Day

	// Rules are the applicable deduction rules. Inactive rules are skipped.
	Rules []deduction.Rule

	// RuleFailures are rules that could not even be decoded from their
	// stored configuration. They are carried into the report as anomalies.
	RuleFailures []deduction.RuleFailure

	// ApplyDeductions=false previews deductions without subtracting them.
	ApplyDeductions bool
}

// Options tune the engine.
type Options struct {
	// StandardDailyHours is the hourly_salary divisor per working day.
	StandardDailyHours decimal.Decimal

	// TopN bounds Summary.Top.
	TopN int
}

const (
	DefaultStandardDailyHours = 8
	DefaultTopN               = 5
)

// DefaultOptions returns 8 hours per day and a top-5 summary.
func DefaultOptions() Options {
	return Options{
		StandardDailyHours: decimal.NewFromInt(DefaultStandardDailyHours),
		TopN:               DefaultTopN,
	}
}

func (o Options) withDefaults() Options {
	if !o.StandardDailyHours.IsPositive() {
		o.StandardDailyHours = decimal.NewFromInt(DefaultStandardDailyHours)
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	return o
}

// =============================================================================
// OUTPUT
// =============================================================================

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type AnomalyCode string

const (
	// AnomalyRuleConfig: a rule was skipped because its configuration is invalid.
	AnomalyRuleConfig AnomalyCode = "rule_config"
	// AnomalyRuleBasis: a salary-equivalent rule had no working days or hours
	// to divide by.
	AnomalyRuleBasis AnomalyCode = "rule_basis"
	// AnomalyOverDeduction: total deduction exceeds gross salary.
	AnomalyOverDeduction AnomalyCode = "over_deduction"
	// AnomalyNoWorkingDays: the period has no working day at all.
	AnomalyNoWorkingDays AnomalyCode = "no_working_days"
)

// Anomaly is a reportable irregularity that did not abort the computation.
type Anomaly struct {
	Code     AnomalyCode      `json:"code"`
	Severity Severity         `json:"severity"`
	Message  string           `json:"message"`
	RuleID   generic.RuleID   `json:"rule_id,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

// TopDeduction is one row of the summary table.
type TopDeduction struct {
	RuleID    generic.RuleID  `json:"rule_id"`
	RuleName  string          `json:"rule_name"`
	KindLabel string          `json:"kind_label"`
	Amount    decimal.Decimal `json:"amount"`
}

// Summary is the tabular breakdown shown on a payslip.
type Summary struct {
	Gross          decimal.Decimal `json:"gross_salary"`
	TotalDeduction decimal.Decimal `json:"total_deduction"`
	Net            decimal.Decimal `json:"net_salary"`
	Applied        bool            `json:"applied"`

	// OverDeduction is the part of TotalDeduction that exceeds Gross. Zero
	// unless the deductions overran the salary.
	OverDeduction decimal.Decimal `json:"over_deduction"`

	Top []TopDeduction `json:"top_deductions"`
}

// Report is one person's deduction report for a period.
type Report struct {
	Person          Person                `json:"person"`
	PeriodStart     generic.TimePoint     `json:"period_start"`
	PeriodEnd       generic.TimePoint     `json:"period_end"`
	Month           int                   `json:"month"`
	Year            int                   `json:"year"`
	WorkingDays     int                   `json:"working_days"`
	ApplyDeductions bool                  `json:"apply_deductions"`
	Deductions      []deduction.Deduction `json:"deductions"`
	TotalDeduction  decimal.Decimal       `json:"total_deduction"`
	Summary         Summary               `json:"summary"`
	Anomalies       []Anomaly             `json:"anomalies"`
}

// NetSalary is Summary.Net.
func (r *Report) NetSalary() decimal.Decimal { return r.Summary.Net }

// HasAnomaly reports whether an anomaly with the given code was raised.
func (r *Report) HasAnomaly(code AnomalyCode) bool {
	for _, a := range r.Anomalies {
		if a.Code == code {
			return true
		}
	}
	return false
}
