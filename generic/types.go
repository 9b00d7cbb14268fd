/*
Package generic provides the domain-agnostic primitives of the payroll engine.

PURPOSE:
  This package holds the building blocks every other package shares: money
  arithmetic, calendar days, pay periods, the work-week/holiday calendar, and
  the error vocabulary. It knows nothing about attendance statuses or
  deduction rules.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal, never float64
  - RoundMoney: half-up rounding to 2 decimal places
  - ClampMoney: optional [min, max] bounds
  - Identifiers: PersonID, RuleID (type-safe strings)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Round late: Intermediate results keep full precision, only aggregation
     points call RoundMoney
  3. Type Safety: Strong typing for IDs prevents mixing person/rule IDs

USAGE:
  daily := gross.Div(decimal.NewFromInt(22))    // 45.4545...
  shown := generic.RoundMoney(daily)           // 45.45

SEE ALSO:
  - time.go: TimePoint, TimeOfDay, WorkWeek, HolidayCalendar
  - period.go: Period (the explicit pay-period parameter)
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places kept on reported amounts.
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half-up to MoneyPlaces. decimal.Round rounds half away
// from zero, which is half-up for the non-negative amounts payroll deals in.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ClampMoney bounds d to [lo, hi]. A nil bound is unbounded on that side.
func ClampMoney(d decimal.Decimal, lo, hi *decimal.Decimal) decimal.Decimal {
	if lo != nil && d.LessThan(*lo) {
		d = *lo
	}
	if hi != nil && d.GreaterThan(*hi) {
		d = *hi
	}
	return d
}

// Percent returns base * pct / 100.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// DecimalPtr is a convenience for optional bounds in literals and tests.
func DecimalPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type RuleID string

// PersonType distinguishes the two populations paid by the ERP.
type PersonType string

const (
	PersonEmployee PersonType = "employee"
	PersonTeacher  PersonType = "teacher"
)

// Valid reports whether t is one of the known person types.
func (t PersonType) Valid() bool {
	return t == PersonEmployee || t == PersonTeacher
}
