package deduction

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// AGGREGATOR - Matches to money
// =============================================================================

// Deduction is one rule's applied contribution to a person's payroll.
type Deduction struct {
	RuleID      generic.RuleID  `json:"rule_id"`
	RuleName    string          `json:"rule_name"`
	PenaltyType string          `json:"penalty_type,omitempty"`
	Kind        Kind            `json:"kind"`
	KindLabel   string          `json:"kind_label"`
	Trigger     string          `json:"trigger"`
	Priority    int             `json:"priority"`
	Matches     []Match         `json:"matches"`
	DayCount    int             `json:"day_count"`
	Amount      decimal.Decimal `json:"amount"`

	raw decimal.Decimal
}

// Aggregation is the sum over every rule that fired.
type Aggregation struct {
	Deductions []Deduction
	Total      decimal.Decimal
	Failures   []RuleFailure
}

// Aggregate prices every match, clamps it to the rule's bounds, and sums.
//
// Full precision is kept through the formula and the sums; rounding happens
// only on the reported per-match, per-rule and grand totals. Rules are
// additive; priority only orders the output.
func Aggregate(b Basis, evaluated []RuleMatches) Aggregation {
	agg := Aggregation{Total: decimal.Zero}
	total := decimal.Zero

	for _, rm := range evaluated {
		if len(rm.Matches) == 0 {
			continue
		}
		rule := rm.Rule

		ded := Deduction{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			PenaltyType: rule.PenaltyType,
			Kind:        rule.Kind(),
			KindLabel:   rule.Kind().Label(),
			Trigger:     rule.Trigger.Describe(),
			Priority:    rule.Priority,
			raw:         decimal.Zero,
		}

		failed := false
		for _, m := range rm.Matches {
			amount, err := rule.Formula.amount(b, m)
			if err != nil {
				agg.Failures = append(agg.Failures, newRuleFailure(rule, err))
				failed = true
				break
			}
			amount = generic.ClampMoney(amount, rule.Min, rule.Max)

			m.raw = amount
			m.Amount = generic.RoundMoney(amount)
			ded.Matches = append(ded.Matches, m)
			ded.DayCount += len(m.Days)
			ded.raw = ded.raw.Add(amount)
		}
		if failed {
			continue
		}

		ded.Amount = generic.RoundMoney(ded.raw)
		total = total.Add(ded.raw)
		agg.Deductions = append(agg.Deductions, ded)
	}

	agg.Total = generic.RoundMoney(total)
	return agg
}
