/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - Malformed rules (skipped per rule, never fatal)
  2. Input errors - Bad periods, duplicate days, negative salaries
  3. Store errors - Missing persons or rules

USAGE:
  if errors.Is(err, generic.ErrMalformedTrigger) {
      // rule is skipped and reported as an anomaly
  }

SEE ALSO:
  - deduction/evaluator.go: Turns RuleError into report anomalies
  - payroll/runner.go: Collects PersonError per failed person
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidRule is returned when a rule's amounts or bounds are inconsistent.
	ErrInvalidRule = errors.New("invalid deduction rule")

	// ErrUnknownDeductionKind is returned for a kind outside fixed/percentage/
	// daily_salary/hourly_salary.
	ErrUnknownDeductionKind = errors.New("unknown deduction kind")

	// ErrMalformedTrigger is returned when a trigger condition cannot be evaluated.
	ErrMalformedTrigger = errors.New("malformed trigger condition")

	// ErrNoWorkingDays is returned when a salary-equivalent formula has no
	// working days (or no daily hours) to divide by.
	ErrNoWorkingDays = errors.New("no working days in period")

	// ErrDuplicateDay is returned when a person has two attendance days on
	// the same date. Exactly one status per (person, date).
	ErrDuplicateDay = errors.New("duplicate attendance day")

	// ErrNegativeSalary is returned for a negative gross salary.
	ErrNegativeSalary = errors.New("gross salary must not be negative")

	// ErrPersonNotFound is returned when a referenced person doesn't exist.
	ErrPersonNotFound = errors.New("person not found")

	// ErrRuleNotFound is returned when a referenced rule doesn't exist.
	ErrRuleNotFound = errors.New("deduction rule not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleError ties a configuration failure to the rule that caused it.
type RuleError struct {
	RuleID   RuleID
	RuleName string
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s (%s): %v", e.RuleID, e.RuleName, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// PersonError ties a computation failure to a person in a batch run.
type PersonError struct {
	PersonID PersonID
	Err      error
}

func (e *PersonError) Error() string {
	return fmt.Sprintf("person %s: %v", e.PersonID, e.Err)
}

func (e *PersonError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigError returns true if the error comes from rule configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrUnknownDeductionKind) ||
		errors.Is(err, ErrMalformedTrigger)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return IsConfigError(err) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicateDay) ||
		errors.Is(err, ErrNegativeSalary)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPersonNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}
