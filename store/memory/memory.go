// Package memory provides an in-memory payroll.Source.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dry runs)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	persons   map[generic.PersonID]payroll.Person
	records   map[generic.PersonID][]attendance.Record
	schedules map[generic.PersonID]attendance.Schedule
	rules     map[generic.RuleID]deduction.Rule
	holidays  []generic.Holiday
}

var (
	_ payroll.Source          = (*Memory)(nil)
	_ generic.HolidayCalendar = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		persons:   make(map[generic.PersonID]payroll.Person),
		records:   make(map[generic.PersonID][]attendance.Record),
		schedules: make(map[generic.PersonID]attendance.Schedule),
		rules:     make(map[generic.RuleID]deduction.Rule),
	}
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) SavePerson(_ context.Context, p payroll.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons[p.ID] = p
	return nil
}

// AddRecords inserts records keeping each person's list in date order.
func (m *Memory) AddRecords(_ context.Context, id generic.PersonID, recs ...attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.persons[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrPersonNotFound, id)
	}
	list := m.records[id]
	for _, rec := range recs {
		// Binary search for insertion point
		i := sort.Search(len(list), func(i int) bool {
			return list[i].Date.After(rec.Date)
		})
		list = append(list, attendance.Record{})
		copy(list[i+1:], list[i:])
		list[i] = rec
	}
	m.records[id] = list
	return nil
}

func (m *Memory) SetSchedule(_ context.Context, id generic.PersonID, sched attendance.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = sched
	return nil
}

func (m *Memory) SaveRule(_ context.Context, r deduction.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r.Clone()
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id generic.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrRuleNotFound, id)
	}
	delete(m.rules, id)
	return nil
}

func (m *Memory) AddHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
	return nil
}

// =============================================================================
// payroll.Source
// =============================================================================

// ListPersons returns persons ordered by ID.
func (m *Memory) ListPersons(_ context.Context) ([]payroll.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]payroll.Person, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPerson(_ context.Context, id generic.PersonID) (*payroll.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrPersonNotFound, id)
	}
	return &p, nil
}

func (m *Memory) LoadAttendance(_ context.Context, id generic.PersonID, period generic.Period) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Record
	for _, rec := range m.records[id] {
		if period.Contains(rec.Date) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *Memory) LoadSchedule(_ context.Context, id generic.PersonID) (attendance.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedules[id], nil
}

// LoadRules returns deep copies of every rule. Rules held in memory are
// already decoded, so the failure list is always empty.
func (m *Memory) LoadRules(_ context.Context) ([]deduction.Rule, []deduction.RuleFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]deduction.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.Clone())
	}
	return deduction.SortRules(out), nil, nil
}

// =============================================================================
// generic.HolidayCalendar
// =============================================================================

func (m *Memory) IsHoliday(companyID string, date generic.TimePoint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return generic.StaticCalendar{Holidays: m.holidays}.IsHoliday(companyID, date)
}
