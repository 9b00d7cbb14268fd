package deduction

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// MATCHES
// =============================================================================

// Match is one triggered single day or day group for a rule.
type Match struct {
	Group  int              `json:"group"`
	Days   []attendance.Day `json:"days"`
	Amount decimal.Decimal  `json:"amount"` // clamped, rounded for display

	raw decimal.Decimal // clamped, full precision
}

// RuleMatches is the evaluation output for one rule.
type RuleMatches struct {
	Rule    Rule
	Matches []Match
}

// RuleFailure records a rule skipped for this run because of bad
// configuration or an unusable salary basis.
type RuleFailure struct {
	RuleID   generic.RuleID `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Reason   string         `json:"reason"`

	Err error `json:"-"`
}

func newRuleFailure(r Rule, err error) RuleFailure {
	return RuleFailure{
		RuleID:   r.ID,
		RuleName: r.Name,
		Reason:   err.Error(),
		Err:      &generic.RuleError{RuleID: r.ID, RuleName: r.Name, Err: err},
	}
}

// Unwrap exposes the underlying RuleError.
func (f RuleFailure) Unwrap() error { return f.Err }

func (f RuleFailure) Error() string {
	var re *generic.RuleError
	if errors.As(f.Err, &re) {
		return re.Error()
	}
	return f.Reason
}

// =============================================================================
// EVALUATOR
// =============================================================================

// SortRules orders rules by priority, then ID, without touching the input.
func SortRules(rules []Rule) []Rule {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Evaluate tests every active rule against the full day set.
//
// Rules are independent: a rule that fails validation is reported in the
// failure list and skipped, the rest still run. Rules without matches are
// included with an empty match list so callers can tell "evaluated, did not
// fire" from "skipped".
func Evaluate(days []attendance.Day, rules []Rule) ([]RuleMatches, []RuleFailure) {
	ordered := make([]attendance.Day, len(days))
	copy(ordered, days)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	var (
		results  []RuleMatches
		failures []RuleFailure
	)
	for _, rule := range SortRules(rules) {
		if !rule.Active {
			continue
		}
		if err := rule.Validate(); err != nil {
			failures = append(failures, newRuleFailure(rule, err))
			continue
		}

		groups := rule.Trigger.match(ordered)
		matches := make([]Match, len(groups))
		for i, g := range groups {
			matches[i] = Match{Group: i + 1, Days: g}
		}
		results = append(results, RuleMatches{Rule: rule, Matches: matches})
	}
	return results, failures
}
