package payroll

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// ENGINE - Per-person computation
// =============================================================================

// Engine computes deduction reports. It holds no per-person state and is
// safe for concurrent use.
type Engine struct {
	Options Options
}

// NewEngine returns an engine with opts, filling unset fields with defaults.
func NewEngine(opts Options) *Engine {
	return &Engine{Options: opts.withDefaults()}
}

// Compute produces the report for one person.
//
// Errors are person-level (bad period, negative salary, duplicate days) and
// wrapped in a *generic.PersonError. Everything rule-level is reported as an
// anomaly on the returned report instead.
func (e *Engine) Compute(in Input) (*Report, error) {
	opts := e.Options.withDefaults()

	if err := in.Period.Validate(); err != nil {
		return nil, personError(in.Person, err)
	}
	if in.Person.GrossSalary.IsNegative() {
		return nil, personError(in.Person, fmt.Errorf("%w: %s", generic.ErrNegativeSalary, in.Person.GrossSalary))
	}
	days, err := periodDays(in.Period, in.Days)
	if err != nil {
		return nil, personError(in.Person, err)
	}

	workingDays := attendance.WorkingDays(days)
	basis := deduction.Basis{
		Gross:              in.Person.GrossSalary,
		WorkingDays:        workingDays,
		StandardDailyHours: opts.StandardDailyHours,
	}

	evaluated, failures := deduction.Evaluate(days, in.Rules)
	agg := deduction.Aggregate(basis, evaluated)

	report := &Report{
		Person:          in.Person,
		PeriodStart:     in.Period.Start,
		PeriodEnd:       in.Period.End,
		Month:           int(in.Period.Month()),
		Year:            in.Period.Year(),
		WorkingDays:     workingDays,
		ApplyDeductions: in.ApplyDeductions,
		Deductions:      agg.Deductions,
		TotalDeduction:  agg.Total,
		Anomalies:       []Anomaly{},
	}
	if report.Deductions == nil {
		report.Deductions = []deduction.Deduction{}
	}

	if workingDays == 0 {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Code:     AnomalyNoWorkingDays,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("period %s has no working days", in.Period),
		})
	}
	for _, f := range in.RuleFailures {
		report.Anomalies = append(report.Anomalies, ruleAnomaly(f))
	}
	for _, f := range failures {
		report.Anomalies = append(report.Anomalies, ruleAnomaly(f))
	}
	for _, f := range agg.Failures {
		report.Anomalies = append(report.Anomalies, ruleAnomaly(f))
	}

	report.Summary = Summarize(in.Person.GrossSalary, agg.Deductions, agg.Total, in.ApplyDeductions, opts.TopN)
	if report.Summary.OverDeduction.IsPositive() {
		excess := report.Summary.OverDeduction
		report.Anomalies = append(report.Anomalies, Anomaly{
			Code:     AnomalyOverDeduction,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("total deduction %s exceeds gross salary %s by %s",
				agg.Total.StringFixed(generic.MoneyPlaces),
				generic.RoundMoney(in.Person.GrossSalary).StringFixed(generic.MoneyPlaces),
				excess.StringFixed(generic.MoneyPlaces)),
			Amount: &excess,
		})
	}

	return report, nil
}

// periodDays drops days outside the period, rejects duplicate dates and
// returns the rest in date order.
func periodDays(period generic.Period, days []attendance.Day) ([]attendance.Day, error) {
	seen := make(map[string]bool, len(days))
	out := make([]attendance.Day, 0, len(days))
	for _, d := range days {
		if !period.Contains(d.Date) {
			continue
		}
		key := d.Date.String()
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", generic.ErrDuplicateDay, key)
		}
		seen[key] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func personError(p Person, err error) error {
	return &generic.PersonError{PersonID: p.ID, Err: err}
}

func ruleAnomaly(f deduction.RuleFailure) Anomaly {
	code := AnomalyRuleConfig
	if errors.Is(f, generic.ErrNoWorkingDays) {
		code = AnomalyRuleBasis
	}
	return Anomaly{
		Code:     code,
		Severity: SeverityError,
		Message:  fmt.Sprintf("rule %q skipped: %s", f.RuleName, f.Reason),
		RuleID:   f.RuleID,
	}
}

// =============================================================================
// SUMMARIZER
// =============================================================================

// Summarize computes net salary and the top-N breakdown.
//
//	net = apply ? max(0, gross - total) : gross
//
// When total exceeds gross the excess is kept in OverDeduction whether or
// not deductions are applied, so previews show the overrun too.
func Summarize(gross decimal.Decimal, deductions []deduction.Deduction, total decimal.Decimal, apply bool, topN int) Summary {
	gross = generic.RoundMoney(gross)
	total = generic.RoundMoney(total)

	s := Summary{
		Gross:          gross,
		TotalDeduction: total,
		Net:            gross,
		Applied:        apply,
		OverDeduction:  decimal.Zero,
		Top:            topDeductions(deductions, topN),
	}
	if total.GreaterThan(gross) {
		s.OverDeduction = total.Sub(gross)
	}
	if apply {
		s.Net = generic.NonNegative(gross.Sub(total))
	}
	return s
}

func topDeductions(deductions []deduction.Deduction, n int) []TopDeduction {
	sorted := make([]deduction.Deduction, len(deductions))
	copy(sorted, deductions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.RuleID < b.RuleID
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	top := make([]TopDeduction, len(sorted))
	for i, d := range sorted {
		top[i] = TopDeduction{
			RuleID:    d.RuleID,
			RuleName:  d.RuleName,
			KindLabel: d.KindLabel,
			Amount:    d.Amount,
		}
	}
	return top
}
