/*
Package deduction evaluates payroll deduction rules against classified
attendance and converts triggered matches into money.

KEY CONCEPTS:
  - Rule: One deduction policy (formula + trigger + clamps + priority)
  - Formula: How a match becomes money (closed set: Fixed, Percentage,
    DailySalary, HourlySalary)
  - Trigger: When a rule fires (closed set: DayThreshold, FromNth,
    EveryNth, Cumulative)
  - Match: One single day or day-group that satisfied a trigger

PIPELINE:
  days  ──Evaluate──▶  []RuleMatches  ──Aggregate──▶  []Deduction + total

  Evaluate never aborts: a malformed rule becomes a RuleFailure and the
  other rules still run. Aggregate keeps full precision until the totals.

EXAMPLE:
  rule := deduction.Rule{
      ID:       "late-3",
      Name:     "Every third late arrival",
      Formula:  deduction.DailySalary{Days: decimal.NewFromFloat(0.5)},
      Trigger:  deduction.EveryNth{Event: deduction.EventLate, N: 3},
      Priority: 10,
      Active:   true,
  }

SEE ALSO:
  - evaluator.go: Trigger matching
  - aggregator.go: Money conversion, clamps, rounding
  - factory/rule.go: JSON configuration for rules
*/
package deduction

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// RULE
// =============================================================================

// Rule is one configured deduction policy.
type Rule struct {
	ID          generic.RuleID
	Name        string
	PenaltyType string // optional owning penalty type, display only

	Formula Formula
	Trigger Trigger

	// Per-match bounds. nil = unbounded on that side.
	Min *decimal.Decimal
	Max *decimal.Decimal

	// Lower priority is evaluated and displayed first.
	Priority int
	Active   bool
}

// Validate checks the invariants a rule must hold before evaluation.
func (r Rule) Validate() error {
	if r.Formula == nil {
		return fmt.Errorf("%w: no deduction kind", generic.ErrUnknownDeductionKind)
	}
	if err := r.Formula.validate(); err != nil {
		return err
	}
	if r.Trigger == nil {
		return fmt.Errorf("%w: no trigger", generic.ErrMalformedTrigger)
	}
	if err := r.Trigger.validate(); err != nil {
		return err
	}
	if r.Min != nil && r.Min.IsNegative() {
		return fmt.Errorf("%w: min_deduction is negative", generic.ErrInvalidRule)
	}
	if r.Max != nil && r.Max.IsNegative() {
		return fmt.Errorf("%w: max_deduction is negative", generic.ErrInvalidRule)
	}
	if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
		return fmt.Errorf("%w: min_deduction exceeds max_deduction", generic.ErrInvalidRule)
	}
	return nil
}

// Clone returns a copy that shares no pointers with r, so a run can
// snapshot the rule set while admins keep editing it.
func (r Rule) Clone() Rule {
	c := r
	if r.Min != nil {
		v := *r.Min
		c.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		c.Max = &v
	}
	return c
}

// Kind returns the formula kind, or "" when the formula is missing.
func (r Rule) Kind() Kind {
	if r.Formula == nil {
		return ""
	}
	return r.Formula.Kind()
}

// =============================================================================
// FORMULA - Tagged variant over the four deduction kinds
// =============================================================================

type Kind string

const (
	KindFixed        Kind = "fixed"
	KindPercentage   Kind = "percentage"
	KindDailySalary  Kind = "daily_salary"
	KindHourlySalary Kind = "hourly_salary"
)

// Label is the human-readable kind shown in exports.
func (k Kind) Label() string {
	switch k {
	case KindFixed:
		return "Fixed amount"
	case KindPercentage:
		return "Percentage of salary"
	case KindDailySalary:
		return "Daily salary"
	case KindHourlySalary:
		return "Hourly salary"
	default:
		return string(k)
	}
}

// Basis is the salary context a formula converts a match against.
type Basis struct {
	Gross              decimal.Decimal
	WorkingDays        int
	StandardDailyHours decimal.Decimal
}

// Formula converts one match into a raw (unrounded, unclamped) amount.
// Implementations are limited to this package.
type Formula interface {
	Kind() Kind
	amount(b Basis, m Match) (decimal.Decimal, error)
	validate() error
}

// Fixed charges Amount once per match, or once per contributing day when
// PerDay is set.
type Fixed struct {
	Amount decimal.Decimal
	PerDay bool
}

// Percentage charges Percent of gross salary per match.
type Percentage struct {
	Percent decimal.Decimal
}

// DailySalary charges the salary equivalent of Days working days per match.
type DailySalary struct {
	Days decimal.Decimal
}

// HourlySalary charges the salary equivalent of Hours working hours per match.
type HourlySalary struct {
	Hours decimal.Decimal
}

func (Fixed) Kind() Kind        { return KindFixed }
func (Percentage) Kind() Kind   { return KindPercentage }
func (DailySalary) Kind() Kind  { return KindDailySalary }
func (HourlySalary) Kind() Kind { return KindHourlySalary }

func (f Fixed) amount(_ Basis, m Match) (decimal.Decimal, error) {
	if f.PerDay {
		return f.Amount.Mul(decimal.NewFromInt(int64(len(m.Days)))), nil
	}
	return f.Amount, nil
}

func (f Percentage) amount(b Basis, _ Match) (decimal.Decimal, error) {
	return generic.Percent(b.Gross, f.Percent), nil
}

func (f DailySalary) amount(b Basis, _ Match) (decimal.Decimal, error) {
	if b.WorkingDays <= 0 {
		return decimal.Zero, generic.ErrNoWorkingDays
	}
	return b.Gross.Div(decimal.NewFromInt(int64(b.WorkingDays))).Mul(f.Days), nil
}

func (f HourlySalary) amount(b Basis, _ Match) (decimal.Decimal, error) {
	if b.WorkingDays <= 0 || !b.StandardDailyHours.IsPositive() {
		return decimal.Zero, generic.ErrNoWorkingDays
	}
	hours := decimal.NewFromInt(int64(b.WorkingDays)).Mul(b.StandardDailyHours)
	return b.Gross.Div(hours).Mul(f.Hours), nil
}

func (f Fixed) validate() error        { return nonNegative("deduction_amount", f.Amount) }
func (f Percentage) validate() error   { return nonNegative("deduction_amount", f.Percent) }
func (f DailySalary) validate() error  { return nonNegative("deduction_days", f.Days) }
func (f HourlySalary) validate() error { return nonNegative("deduction_hours", f.Hours) }

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative", generic.ErrInvalidRule, field)
	}
	return nil
}

// Magnitude returns the formula's configured number, for exports.
func Magnitude(f Formula) decimal.Decimal {
	switch v := f.(type) {
	case Fixed:
		return v.Amount
	case Percentage:
		return v.Percent
	case DailySalary:
		return v.Days
	case HourlySalary:
		return v.Hours
	default:
		return decimal.Zero
	}
}
