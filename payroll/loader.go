package payroll

import (
	"context"
	"fmt"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SOURCE - Where run inputs come from
// =============================================================================

// Source provides everything a payroll run reads. Implementations:
// store/sqlite (persistent) and store/memory (tests, dry runs).
type Source interface {
	ListPersons(ctx context.Context) ([]Person, error)
	GetPerson(ctx context.Context, id generic.PersonID) (*Person, error)
	LoadAttendance(ctx context.Context, id generic.PersonID, period generic.Period) ([]attendance.Record, error)
	LoadSchedule(ctx context.Context, id generic.PersonID) (attendance.Schedule, error)

	// LoadRules returns the configured rules. Rules whose stored
	// configuration cannot be decoded come back as failures, not errors.
	LoadRules(ctx context.Context) ([]deduction.Rule, []deduction.RuleFailure, error)
}

// Loader builds run inputs by classifying each person's raw records.
type Loader struct {
	Source     Source
	Classifier *attendance.Classifier
}

// NewLoader returns a loader with a Monday-Friday classifier.
func NewLoader(src Source, classifier *attendance.Classifier) *Loader {
	if classifier == nil {
		classifier = attendance.NewClassifier()
	}
	return &Loader{Source: src, Classifier: classifier}
}

// Load builds one Input per person for period. Every input shares the
// same rule slice; the Runner snapshots it once.
func (l *Loader) Load(ctx context.Context, period generic.Period, apply bool) ([]Input, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	persons, err := l.Source.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}
	rules, ruleFailures, err := l.Source.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	inputs := make([]Input, 0, len(persons))
	for _, p := range persons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := l.input(ctx, p, period, rules, ruleFailures, apply)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// LoadPerson builds the input for a single person.
func (l *Loader) LoadPerson(ctx context.Context, id generic.PersonID, period generic.Period, apply bool) (Input, error) {
	if err := period.Validate(); err != nil {
		return Input{}, err
	}
	p, err := l.Source.GetPerson(ctx, id)
	if err != nil {
		return Input{}, err
	}
	rules, ruleFailures, err := l.Source.LoadRules(ctx)
	if err != nil {
		return Input{}, fmt.Errorf("loading rules: %w", err)
	}
	return l.input(ctx, *p, period, rules, ruleFailures, apply)
}

// Days classifies one person's attendance for period.
func (l *Loader) Days(ctx context.Context, p Person, period generic.Period) ([]attendance.Day, error) {
	records, err := l.Source.LoadAttendance(ctx, p.ID, period)
	if err != nil {
		return nil, fmt.Errorf("loading attendance for %s: %w", p.ID, err)
	}
	sched, err := l.Source.LoadSchedule(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading schedule for %s: %w", p.ID, err)
	}
	return l.classifierFor(p).Classify(period, records, sched), nil
}

func (l *Loader) input(ctx context.Context, p Person, period generic.Period, rules []deduction.Rule, failures []deduction.RuleFailure, apply bool) (Input, error) {
	days, err := l.Days(ctx, p, period)
	if err != nil {
		return Input{}, err
	}
	return Input{
		Person:          p,
		Period:          period,
		Days:            days,
		Rules:           rules,
		RuleFailures:    failures,
		ApplyDeductions: apply,
	}, nil
}

// classifierFor scopes holiday lookups to the person's company.
func (l *Loader) classifierFor(p Person) *attendance.Classifier {
	c := l.Classifier
	if c == nil {
		c = attendance.NewClassifier()
	}
	if p.CompanyID == "" || p.CompanyID == c.CompanyID {
		return c
	}
	scoped := *c
	scoped.CompanyID = p.CompanyID
	return &scoped
}
