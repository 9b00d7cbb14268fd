/*
Package factory provides JSON to Go deduction rule conversion.

PURPOSE:
  Converts JSON rule definitions into deduction.Rule values. HR admins
  configure deduction policies through the API; the JSON is stored as-is
  and decoded on every payroll run, so a bad definition surfaces as a
  per-rule failure instead of breaking the run.

JSON SCHEMA:
  {
    "id": "late-3",
    "name": "Every third late arrival",
    "penalty_type": "lateness",
    "deduction_type": "daily_salary",
    "deduction_days": 0.5,
    "max_deduction": 50,
    "trigger": {"type": "every_nth", "event": "late", "count": 3},
    "priority": 10,
    "is_active": true
  }

DEDUCTION TYPES (which magnitude field drives the formula):
  fixed          deduction_amount  (+ per_day to charge per contributing day)
  percentage     deduction_amount  (percent of gross salary)
  daily_salary   deduction_days
  hourly_salary  deduction_hours

TRIGGER TYPES:
  day_threshold  {"event", "minutes"}            any day over N minutes
  from_nth       {"event", "count"}              N-th occurrence onwards
  every_nth      {"event", "count"}              each complete batch of N
  cumulative     {"event", "minutes", "repeat"}  running minutes over N

USAGE:
  f := factory.NewRuleFactory()
  rule, err := f.ParseRule(jsonString)
  if generic.IsConfigError(err) { ... }

SEE ALSO:
  - deduction/rule.go: Rule type definition
  - store/sqlite: Rules persisted as config_json
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a deduction rule.
type RuleJSON struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	PenaltyType     string           `json:"penalty_type,omitempty"`
	DeductionType   string           `json:"deduction_type"`
	DeductionAmount *decimal.Decimal `json:"deduction_amount,omitempty"`
	DeductionDays   *decimal.Decimal `json:"deduction_days,omitempty"`
	DeductionHours  *decimal.Decimal `json:"deduction_hours,omitempty"`
	PerDay          bool             `json:"per_day,omitempty"`
	MinDeduction    *decimal.Decimal `json:"min_deduction,omitempty"`
	MaxDeduction    *decimal.Decimal `json:"max_deduction,omitempty"`
	Trigger         TriggerJSON      `json:"trigger"`
	Priority        int              `json:"priority"`
	IsActive        *bool            `json:"is_active,omitempty"` // Default true
}

// TriggerJSON represents a trigger condition.
type TriggerJSON struct {
	Type    string `json:"type"`  // day_threshold, from_nth, every_nth, cumulative
	Event   string `json:"event"` // late, absent, early_leave
	Count   int    `json:"count,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	Repeat  bool   `json:"repeat,omitempty"`
}

const (
	TriggerDayThreshold = "day_threshold"
	TriggerFromNth      = "from_nth"
	TriggerEveryNth     = "every_nth"
	TriggerCumulative   = "cumulative"
)

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to Go structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule parses a JSON string into a validated Rule.
func (f *RuleFactory) ParseRule(jsonStr string) (deduction.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return deduction.Rule{}, fmt.Errorf("%w: failed to parse rule JSON: %v", generic.ErrInvalidRule, err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a validated deduction.Rule.
func (f *RuleFactory) FromJSON(rj RuleJSON) (deduction.Rule, error) {
	if rj.ID == "" {
		return deduction.Rule{}, fmt.Errorf("%w: id is required", generic.ErrInvalidRule)
	}
	if rj.Name == "" {
		return deduction.Rule{}, fmt.Errorf("%w: name is required", generic.ErrInvalidRule)
	}

	formula, err := parseFormula(rj)
	if err != nil {
		return deduction.Rule{}, err
	}
	trigger, err := parseTrigger(rj.Trigger)
	if err != nil {
		return deduction.Rule{}, err
	}

	rule := deduction.Rule{
		ID:          generic.RuleID(rj.ID),
		Name:        rj.Name,
		PenaltyType: rj.PenaltyType,
		Formula:     formula,
		Trigger:     trigger,
		Min:         copyDecimal(rj.MinDeduction),
		Max:         copyDecimal(rj.MaxDeduction),
		Priority:    rj.Priority,
		Active:      rj.IsActive == nil || *rj.IsActive,
	}
	if err := rule.Validate(); err != nil {
		return deduction.Rule{}, err
	}
	return rule, nil
}

// Decode turns a stored rule configuration into a rule, or into the
// failure a payroll run reports for it.
func (f *RuleFactory) Decode(id generic.RuleID, name, configJSON string) (deduction.Rule, *deduction.RuleFailure) {
	rule, err := f.ParseRule(configJSON)
	if err != nil {
		failure := deduction.RuleFailure{
			RuleID:   id,
			RuleName: name,
			Reason:   err.Error(),
			Err:      &generic.RuleError{RuleID: id, RuleName: name, Err: err},
		}
		return deduction.Rule{}, &failure
	}
	return rule, nil
}

// ToJSON converts a Rule to RuleJSON.
func (f *RuleFactory) ToJSON(rule deduction.Rule) RuleJSON {
	active := rule.Active
	rj := RuleJSON{
		ID:            string(rule.ID),
		Name:          rule.Name,
		PenaltyType:   rule.PenaltyType,
		DeductionType: string(rule.Kind()),
		MinDeduction:  copyDecimal(rule.Min),
		MaxDeduction:  copyDecimal(rule.Max),
		Priority:      rule.Priority,
		IsActive:      &active,
	}

	switch v := rule.Formula.(type) {
	case deduction.Fixed:
		rj.DeductionAmount = copyDecimal(&v.Amount)
		rj.PerDay = v.PerDay
	case deduction.Percentage:
		rj.DeductionAmount = copyDecimal(&v.Percent)
	case deduction.DailySalary:
		rj.DeductionDays = copyDecimal(&v.Days)
	case deduction.HourlySalary:
		rj.DeductionHours = copyDecimal(&v.Hours)
	}

	switch v := rule.Trigger.(type) {
	case deduction.DayThreshold:
		rj.Trigger = TriggerJSON{Type: TriggerDayThreshold, Event: string(v.Event), Minutes: v.OverMinutes}
	case deduction.FromNth:
		rj.Trigger = TriggerJSON{Type: TriggerFromNth, Event: string(v.Event), Count: v.N}
	case deduction.EveryNth:
		rj.Trigger = TriggerJSON{Type: TriggerEveryNth, Event: string(v.Event), Count: v.N}
	case deduction.Cumulative:
		rj.Trigger = TriggerJSON{Type: TriggerCumulative, Event: string(v.Event), Minutes: v.OverMinutes, Repeat: v.Repeat}
	}

	return rj
}

// Marshal is ToJSON encoded as a string, the form rules are stored in.
func (f *RuleFactory) Marshal(rule deduction.Rule) (string, error) {
	data, err := json.Marshal(f.ToJSON(rule))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseFormula(rj RuleJSON) (deduction.Formula, error) {
	switch deduction.Kind(rj.DeductionType) {
	case deduction.KindFixed:
		amount, err := required(rj.DeductionAmount, "deduction_amount", rj.DeductionType)
		if err != nil {
			return nil, err
		}
		return deduction.Fixed{Amount: amount, PerDay: rj.PerDay}, nil
	case deduction.KindPercentage:
		pct, err := required(rj.DeductionAmount, "deduction_amount", rj.DeductionType)
		if err != nil {
			return nil, err
		}
		return deduction.Percentage{Percent: pct}, nil
	case deduction.KindDailySalary:
		days, err := required(rj.DeductionDays, "deduction_days", rj.DeductionType)
		if err != nil {
			return nil, err
		}
		return deduction.DailySalary{Days: days}, nil
	case deduction.KindHourlySalary:
		hours, err := required(rj.DeductionHours, "deduction_hours", rj.DeductionType)
		if err != nil {
			return nil, err
		}
		return deduction.HourlySalary{Hours: hours}, nil
	default:
		return nil, fmt.Errorf("%w: %q", generic.ErrUnknownDeductionKind, rj.DeductionType)
	}
}

func parseTrigger(tj TriggerJSON) (deduction.Trigger, error) {
	event := deduction.Event(tj.Event)
	switch tj.Type {
	case TriggerDayThreshold:
		return deduction.DayThreshold{Event: event, OverMinutes: tj.Minutes}, nil
	case TriggerFromNth:
		return deduction.FromNth{Event: event, N: tj.Count}, nil
	case TriggerEveryNth:
		return deduction.EveryNth{Event: event, N: tj.Count}, nil
	case TriggerCumulative:
		return deduction.Cumulative{Event: event, OverMinutes: tj.Minutes, Repeat: tj.Repeat}, nil
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", generic.ErrMalformedTrigger, tj.Type)
	}
}

func required(v *decimal.Decimal, field, kind string) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, fmt.Errorf("%w: %s requires %s", generic.ErrInvalidRule, kind, field)
	}
	return *v, nil
}

func copyDecimal(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
