package core

import (
	"time"

	"github.com/google/uuid"
)

// PeriodKind selects how a budget's evaluation windows are laid out.
type PeriodKind string

const (
	PeriodMonthly PeriodKind = "monthly"
	PeriodWeekly  PeriodKind = "weekly"
	PeriodCustom  PeriodKind = "custom"
)

// PeriodSpec defines a budget's recurring evaluation window. Monthly
// periods follow calendar months in the budget's zone; weekly periods
// follow the configured week-start day; custom is a single fixed
// [Start, End) range.
type PeriodSpec struct {
	Kind      PeriodKind
	Zone      string // IANA zone name, empty means UTC
	WeekStart time.Weekday
	Start     time.Time // custom only
	End       time.Time // custom only, exclusive
}

// Validate checks the period definition.
func (p PeriodSpec) Validate() error {
	switch p.Kind {
	case PeriodMonthly, PeriodWeekly:
	case PeriodCustom:
		if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) {
			return ErrInvalidPeriod
		}
	default:
		return ErrInvalidPeriod
	}
	if p.Zone != "" {
		if _, err := time.LoadLocation(p.Zone); err != nil {
			return ErrInvalidPeriod
		}
	}
	return nil
}

// Location resolves the period's time zone, defaulting to UTC.
func (p PeriodSpec) Location() *time.Location {
	if p.Zone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Budget caps consumption of a category (or, for rollup budgets, the
// category and all its descendants) per period instance. Superseding a
// budget closes the prior one at a period boundary; history is never
// mutated retroactively.
type Budget struct {
	ID         uuid.UUID
	CategoryID uuid.UUID
	Rollup     bool
	Period     PeriodSpec
	Limit      Money
	Thresholds []int // percentages, strictly increasing
	CreatedAt  time.Time
	ClosedAt   time.Time // zero while active
}

// Validate checks budget invariants at creation time.
func (b Budget) Validate() error {
	if b.CategoryID == uuid.Nil {
		return ErrUnknownCategory
	}
	if b.Limit.Cents <= 0 {
		return ErrInvalidAmount
	}
	if len(b.Thresholds) == 0 {
		return ErrInvalidThresholds
	}
	prev := 0
	for _, t := range b.Thresholds {
		if t <= prev {
			return ErrInvalidThresholds
		}
		prev = t
	}
	return b.Period.Validate()
}

// Active reports whether the budget is still open.
func (b Budget) Active() bool {
	return b.ClosedAt.IsZero()
}
