// Package budget computes period-scoped consumption per category and
// evaluates threshold alerts. Evaluation is a pure read-side
// projection over the transaction store; the only state it keeps is
// the record of thresholds already fired.
package budget

import (
	"time"

	"bilancio/internal/core"
)

// Instance is one concrete [Start, End) evaluation window of a budget.
// Every instant belongs to exactly one instance per budget: windows
// neither overlap nor leave gaps.
type Instance struct {
	Start time.Time
	End   time.Time // exclusive
}

// Key identifies the instance, stable across evaluations.
func (i Instance) Key() string {
	return i.Start.Format(time.RFC3339)
}

// Contains reports whether the instant falls inside the window.
func (i Instance) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Resolve maps an instant to the period instance containing it.
// Monthly windows follow calendar months in the period's zone; weekly
// windows start on the configured weekday at midnight; custom periods
// are a single fixed range and instants outside it are rejected.
func Resolve(spec core.PeriodSpec, instant time.Time) (Instance, error) {
	loc := spec.Location()
	local := instant.In(loc)

	switch spec.Kind {
	case core.PeriodMonthly:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		end := start.AddDate(0, 1, 0)
		return Instance{Start: start, End: end}, nil

	case core.PeriodWeekly:
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		back := (int(day.Weekday()) - int(spec.WeekStart) + 7) % 7
		start := day.AddDate(0, 0, -back)
		return Instance{Start: start, End: start.AddDate(0, 0, 7)}, nil

	case core.PeriodCustom:
		inst := Instance{Start: spec.Start, End: spec.End}
		if !inst.Contains(instant) {
			return Instance{}, core.ErrOutsidePeriod
		}
		return inst, nil
	}
	return Instance{}, core.ErrInvalidPeriod
}
