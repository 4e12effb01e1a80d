package core

import (
	"time"

	"github.com/google/uuid"
)

// IntervalUnit is the unit a recurrence schedule steps by.
type IntervalUnit string

const (
	UnitDay   IntervalUnit = "day"
	UnitWeek  IntervalUnit = "week"
	UnitMonth IntervalUnit = "month"
	UnitYear  IntervalUnit = "year"
)

// Schedule describes when a recurrence template produces occurrences.
//
// Month- and year-anchored schedules use AnchorDay (day of month);
// week-anchored schedules use AnchorWeekday. An anchor day greater than
// the days in a shorter month clamps to the last valid day of that
// month (anchor 31 -> Feb 28/29).
type Schedule struct {
	Unit          IntervalUnit
	Count         int // every Count units, at least 1
	AnchorDay     int // day of month for month/year units
	AnchorWeekday time.Weekday
	EndDate       time.Time // zero means no end date
	MaxOccurrence int       // 0 means unbounded
}

// Validate checks schedule invariants at template creation time.
func (s Schedule) Validate() error {
	switch s.Unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
	default:
		return ErrInvalidSchedule
	}
	if s.Count < 1 {
		return ErrInvalidSchedule
	}
	if (s.Unit == UnitMonth || s.Unit == UnitYear) && (s.AnchorDay < 1 || s.AnchorDay > 31) {
		return ErrInvalidSchedule
	}
	if s.MaxOccurrence < 0 {
		return ErrInvalidSchedule
	}
	return nil
}

// Template is a recurring-transaction template. Edits only affect
// occurrences materialized after the edit; already-posted transactions
// are immutable history. LastThrough is the materialization watermark
// and is monotonically non-decreasing.
type Template struct {
	ID          uuid.UUID
	Amount      Money
	CategoryID  uuid.UUID
	Memo        string
	Schedule    Schedule
	CreatedAt   time.Time
	LastThrough time.Time
	Occurrences int // count of occurrences posted so far
}

// Validate checks the template shape.
func (t Template) Validate() error {
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if t.CategoryID == uuid.Nil {
		return ErrUnknownCategory
	}
	if len(t.Memo) == 0 {
		return ErrEmptyDescription
	}
	if t.CreatedAt.IsZero() {
		return ErrInvalidDate
	}
	return t.Schedule.Validate()
}

// Ended reports whether the template is past its end condition as of
// the given cursor date.
func (t Template) Ended(cursor time.Time) bool {
	if t.Schedule.MaxOccurrence > 0 && t.Occurrences >= t.Schedule.MaxOccurrence {
		return true
	}
	if !t.Schedule.EndDate.IsZero() && cursor.After(t.Schedule.EndDate) {
		return true
	}
	return false
}

// OccurrenceDate returns the date of the n-th occurrence (0-based)
// generated by the schedule from the template's creation date.
func (t Template) OccurrenceDate(n int) time.Time {
	base := t.CreatedAt
	step := t.Schedule.Count * n
	switch t.Schedule.Unit {
	case UnitDay:
		return base.AddDate(0, 0, step)
	case UnitWeek:
		first := nextWeekday(base, t.Schedule.AnchorWeekday)
		return first.AddDate(0, 0, 7*step)
	case UnitMonth:
		return anchoredMonth(base.Year(), int(base.Month())+step, t.Schedule.AnchorDay, base.Location())
	case UnitYear:
		return anchoredMonth(base.Year()+step, int(base.Month()), t.Schedule.AnchorDay, base.Location())
	}
	return time.Time{}
}

// anchoredMonth builds the anchored date inside the given year/month,
// clamping the anchor day to the last valid day of shorter months.
// Month may be outside 1..12; time.Date normalizes it.
func anchoredMonth(year, month, day int, loc *time.Location) time.Time {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

// nextWeekday returns the first instant on or after t that falls on wd,
// truncated to midnight.
func nextWeekday(t time.Time, wd time.Weekday) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}
