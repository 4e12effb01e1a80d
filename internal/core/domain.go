// Package core defines the domain model of the ledger and budgeting
// engine: monetary amounts, categories, transactions, recurrence
// templates, budgets and goals, together with the error taxonomy shared
// by every component.
package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a category (and by extension the transactions tagged
// with it) as income or expense.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// SourceKind records how a transaction entered the ledger.
type SourceKind string

const (
	SourceManual    SourceKind = "manual"
	SourceRecurring SourceKind = "recurring"
	SourceImport    SourceKind = "import"
)

// Category is a node in the hierarchical tagging tree. Parent is nil
// for roots. Categories are soft-deleted, never removed, while any
// transaction references them.
type Category struct {
	ID      uuid.UUID
	Name    string
	Kind    Kind
	Parent  *uuid.UUID
	Deleted bool
}

// Transaction is a posted monetary event. Amount is sign-normalized at
// ingestion: expense categories store negative cents, income categories
// positive cents. Once posted only the category reference and memo may
// change; removal is a tombstone.
type Transaction struct {
	ID         uuid.UUID
	Amount     Money
	Posted     time.Time
	CategoryID uuid.UUID
	Memo       string // optional
	Source     SourceKind
	TemplateID uuid.UUID // set when Source == SourceRecurring
	DedupKey   string
}

// Validate checks the fields the engine cannot normalize on its own.
func (t Transaction) Validate() error {
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if t.Posted.IsZero() {
		return ErrInvalidDate
	}
	if t.CategoryID == uuid.Nil {
		return ErrUnknownCategory
	}
	if len(t.Memo) > 200 {
		return ErrDescriptionTooLong
	}
	switch t.Source {
	case SourceManual, SourceRecurring, SourceImport:
	default:
		return ErrInvalidSource
	}
	return nil
}

// ParsedRow is one externally supplied row handed to the import
// reconciler. Vendor-format parsing happens upstream; the engine only
// sees this shape. Amount carries the row's original sign.
type ParsedRow struct {
	Date         time.Time
	Amount       Money
	Description  string
	CategoryHint string
}

// Validate rejects rows the reconciler cannot classify at all.
func (r ParsedRow) Validate() error {
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	if r.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	return nil
}

// InferredKind derives the category kind from the row's amount sign.
func (r ParsedRow) InferredKind() Kind {
	if r.Amount.Cents < 0 {
		return KindExpense
	}
	return KindIncome
}

// Goal is a savings target. Accumulated progress is derived from the
// linked contribution transactions and never stored.
type Goal struct {
	ID           uuid.UUID
	Name         string
	Target       Money
	TargetDate   time.Time // zero means no target date
	CreatedAt    time.Time
	SweepPercent int // auto-sweep share of reported surplus, 0 = manual only
}

// Validate checks goal invariants at creation time.
func (g Goal) Validate() error {
	if len(strings.TrimSpace(g.Name)) == 0 {
		return ErrEmptyDescription
	}
	if g.Target.Cents <= 0 {
		return ErrInvalidAmount
	}
	if g.SweepPercent < 0 || g.SweepPercent > 100 {
		return ErrInvalidSweep
	}
	if !g.TargetDate.IsZero() && !g.CreatedAt.IsZero() && !g.TargetDate.After(g.CreatedAt) {
		return ErrInvalidDate
	}
	return nil
}
