package core

import "errors"

// Error taxonomy. Validation errors are rejected synchronously and
// never partially applied; conflict errors are surfaced for a manual
// decision; not-found and already-tombstoned make the operation a
// no-op beyond reporting; invariant violations signal a defect and the
// engine refuses the operation rather than corrupting state.
var (
	// Validation
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidSource      = errors.New("invalid transaction source")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrKindMismatch       = errors.New("category kind does not match")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidThresholds  = errors.New("thresholds must be strictly increasing")
	ErrInvalidPeriod      = errors.New("invalid budget period")
	ErrInvalidSweep       = errors.New("sweep percentage must be between 0 and 100")
	ErrNotLeaf            = errors.New("category has descendants; mark the budget as rollup")
	ErrOutsidePeriod      = errors.New("instant outside the budget's period range")

	// Conflict
	ErrTemplateEnded  = errors.New("recurrence template already ended")
	ErrBudgetActive   = errors.New("an active budget already exists for this category and period")
	ErrImportConflict = errors.New("import row requires manual resolution")

	// Not found / tombstoned
	ErrNotFound           = errors.New("not found")
	ErrAlreadyTombstoned  = errors.New("transaction already tombstoned")
	ErrCategoryDeleted    = errors.New("category is deleted")
	ErrCategoryReferenced = errors.New("category still referenced")

	// Invariant violations
	ErrCycle        = errors.New("operation would create a category cycle")
	ErrNonMonotonic = errors.New("materialization watermark would move backwards")
	ErrReserved     = errors.New("reserved category cannot be modified")
)
