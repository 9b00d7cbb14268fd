package deduction

import (
	"fmt"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// EVENTS - What a trigger counts
// =============================================================================

type Event string

const (
	EventLate       Event = "late"
	EventAbsent     Event = "absent"
	EventEarlyLeave Event = "early_leave"
)

func (e Event) valid() bool {
	return e == EventLate || e == EventAbsent || e == EventEarlyLeave
}

// occurs reports whether the day carries this event.
func (e Event) occurs(d attendance.Day) bool {
	switch e {
	case EventLate:
		return d.IsLate()
	case EventAbsent:
		return d.IsAbsent()
	case EventEarlyLeave:
		return d.LeftEarly()
	default:
		return false
	}
}

// minutes is the event magnitude; absences have none.
func (e Event) minutes(d attendance.Day) int {
	switch e {
	case EventLate:
		return d.LateMinutes
	case EventEarlyLeave:
		return d.EarlyLeaveMinutes
	default:
		return 0
	}
}

// timed reports whether the event has a minute magnitude.
func (e Event) timed() bool { return e == EventLate || e == EventEarlyLeave }

// =============================================================================
// TRIGGER - Tagged variant over the supported conditions
// =============================================================================

// Trigger decides which days (or day groups) a rule fires on. Implementations
// receive days in ascending date order and return groups in that same order.
type Trigger interface {
	Describe() string
	match(days []attendance.Day) [][]attendance.Day
	validate() error
}

// DayThreshold fires once per day whose event minutes exceed OverMinutes.
// For absences every absent day fires.
type DayThreshold struct {
	Event       Event
	OverMinutes int
}

// FromNth numbers occurrences in date order; every occurrence at or after
// the N-th fires as a single day ("5th absence onwards").
type FromNth struct {
	Event Event
	N     int
}

// EveryNth groups occurrences into consecutive batches of N; each complete
// batch fires once. A trailing incomplete batch does not fire.
type EveryNth struct {
	Event Event
	N     int
}

// Cumulative fires when the running total of event minutes exceeds
// OverMinutes. Without Repeat one group covers every contributing day of
// the period; with Repeat each crossing closes a group and resets the total.
type Cumulative struct {
	Event       Event
	OverMinutes int
	Repeat      bool
}

func (t DayThreshold) Describe() string {
	if !t.Event.timed() || t.OverMinutes == 0 {
		return fmt.Sprintf("any %s day", t.Event)
	}
	return fmt.Sprintf("any %s day over %d min", t.Event, t.OverMinutes)
}

func (t FromNth) Describe() string {
	return fmt.Sprintf("%s occurrence %s onwards", t.Event, ordinal(t.N))
}

func (t EveryNth) Describe() string {
	return fmt.Sprintf("every %s %s occurrence", ordinal(t.N), t.Event)
}

func (t Cumulative) Describe() string {
	if t.Repeat {
		return fmt.Sprintf("every %d cumulative %s minutes", t.OverMinutes, t.Event)
	}
	return fmt.Sprintf("cumulative %s over %d min", t.Event, t.OverMinutes)
}

func (t DayThreshold) validate() error {
	if !t.Event.valid() {
		return fmt.Errorf("%w: unknown event %q", generic.ErrMalformedTrigger, t.Event)
	}
	if t.OverMinutes < 0 {
		return fmt.Errorf("%w: negative minute threshold", generic.ErrMalformedTrigger)
	}
	if !t.Event.timed() && t.OverMinutes > 0 {
		return fmt.Errorf("%w: %s has no minutes to compare", generic.ErrMalformedTrigger, t.Event)
	}
	return nil
}

func (t FromNth) validate() error  { return validateCount(t.Event, t.N) }
func (t EveryNth) validate() error { return validateCount(t.Event, t.N) }

func (t Cumulative) validate() error {
	if !t.Event.valid() {
		return fmt.Errorf("%w: unknown event %q", generic.ErrMalformedTrigger, t.Event)
	}
	if !t.Event.timed() {
		return fmt.Errorf("%w: cumulative trigger needs a timed event, got %s", generic.ErrMalformedTrigger, t.Event)
	}
	if t.OverMinutes <= 0 {
		return fmt.Errorf("%w: cumulative threshold must be positive", generic.ErrMalformedTrigger)
	}
	return nil
}

func validateCount(e Event, n int) error {
	if !e.valid() {
		return fmt.Errorf("%w: unknown event %q", generic.ErrMalformedTrigger, e)
	}
	if n < 1 {
		return fmt.Errorf("%w: occurrence count must be at least 1", generic.ErrMalformedTrigger)
	}
	return nil
}

// =============================================================================
// MATCHING
// =============================================================================

func (t DayThreshold) match(days []attendance.Day) [][]attendance.Day {
	var groups [][]attendance.Day
	for _, d := range days {
		if !t.Event.occurs(d) {
			continue
		}
		if !t.Event.timed() || t.Event.minutes(d) > t.OverMinutes {
			groups = append(groups, []attendance.Day{d})
		}
	}
	return groups
}

func (t FromNth) match(days []attendance.Day) [][]attendance.Day {
	var groups [][]attendance.Day
	n := 0
	for _, d := range days {
		if !t.Event.occurs(d) {
			continue
		}
		n++
		if n >= t.N {
			groups = append(groups, []attendance.Day{d})
		}
	}
	return groups
}

func (t EveryNth) match(days []attendance.Day) [][]attendance.Day {
	var groups [][]attendance.Day
	var batch []attendance.Day
	for _, d := range days {
		if !t.Event.occurs(d) {
			continue
		}
		batch = append(batch, d)
		if len(batch) == t.N {
			groups = append(groups, batch)
			batch = nil
		}
	}
	return groups
}

func (t Cumulative) match(days []attendance.Day) [][]attendance.Day {
	var groups [][]attendance.Day
	var batch []attendance.Day
	total := 0
	for _, d := range days {
		if !t.Event.occurs(d) {
			continue
		}
		batch = append(batch, d)
		total += t.Event.minutes(d)
		if t.Repeat && total > t.OverMinutes {
			groups = append(groups, batch)
			batch, total = nil, 0
		}
	}
	if !t.Repeat && total > t.OverMinutes {
		groups = append(groups, batch)
	}
	return groups
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
