// Package importer reconciles externally parsed statement rows against
// the ledger. Every row is classified independently: exact dedup-key
// matches are skipped, near matches are flagged for manual resolution,
// the rest are inserted. Re-running the same batch inserts nothing.
package importer

import (
	"context"
	"log/slog"

	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
)

// RowStatus classifies the outcome of one reconciled row.
type RowStatus string

const (
	StatusInserted  RowStatus = "inserted"
	StatusDuplicate RowStatus = "duplicate"
	StatusConflict  RowStatus = "conflict"
	StatusRejected  RowStatus = "rejected"
)

// RowResult is the per-row outcome. TransactionID is set for inserted
// rows and for duplicates (pointing at the existing transaction);
// Matches lists the near-match candidates of a conflict.
type RowResult struct {
	Index         int         `json:"index"`
	Status        RowStatus   `json:"status"`
	TransactionID uuid.UUID   `json:"transaction_id,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Matches       []uuid.UUID `json:"matches,omitempty"`
}

// Report summarizes one reconciliation batch.
type Report struct {
	Results    []RowResult `json:"results"`
	Inserted   int         `json:"inserted"`
	Duplicates int         `json:"duplicates"`
	Conflicts  int         `json:"conflicts"`
	Rejected   int         `json:"rejected"`
}

// Reconciler matches parsed rows against the ledger.
type Reconciler struct {
	store     *ledger.Store
	cats      *category.Graph
	tolerance int // near-match window in days on either side
	log       *slog.Logger
}

// NewReconciler creates a reconciler with the given near-match day
// tolerance.
func NewReconciler(store *ledger.Store, cats *category.Graph, tolerance int) *Reconciler {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Reconciler{
		store:     store,
		cats:      cats,
		tolerance: tolerance,
		log:       slog.With("component", "importer"),
	}
}

// Reconcile classifies and applies a batch of rows. Rows are processed
// in order and independently; a rejected or conflicting row never
// blocks the rest of the batch. The context aborts processing between
// rows.
func (r *Reconciler) Reconcile(ctx context.Context, rows []core.ParsedRow) (Report, error) {
	report := Report{Results: make([]RowResult, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := r.classify(i, row)
		if result.Status == StatusInserted {
			id, err := r.insert(row)
			if err != nil {
				result = RowResult{Index: i, Status: StatusRejected, Reason: err.Error()}
			} else {
				result.TransactionID = id
			}
		}
		report.Results = append(report.Results, result)
		switch result.Status {
		case StatusInserted:
			report.Inserted++
		case StatusDuplicate:
			report.Duplicates++
		case StatusConflict:
			report.Conflicts++
		case StatusRejected:
			report.Rejected++
		}
	}
	r.log.Info("batch reconciled",
		"rows", len(rows),
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"conflicts", report.Conflicts,
		"rejected", report.Rejected)
	return report, nil
}

// Accept inserts a row that was previously reported as a conflict,
// bypassing the near-match check. The exact-duplicate check still
// applies, so accepting twice inserts once.
func (r *Reconciler) Accept(row core.ParsedRow) (uuid.UUID, error) {
	if err := row.Validate(); err != nil {
		return uuid.Nil, err
	}
	if key, ok := r.dedupKey(row); ok && r.store.HasLiveDedup(key) {
		return uuid.Nil, core.ErrImportConflict
	}
	return r.insert(row)
}

func (r *Reconciler) classify(index int, row core.ParsedRow) RowResult {
	if err := row.Validate(); err != nil {
		return RowResult{Index: index, Status: StatusRejected, Reason: err.Error()}
	}

	key, _ := r.dedupKey(row)
	if r.store.HasLiveDedup(key) {
		return RowResult{Index: index, Status: StatusDuplicate}
	}

	normalized := row.Amount.Signed(row.InferredKind())
	if near := r.store.NearMatches(row.Date, r.tolerance, normalized, row.Description); len(near) > 0 {
		ids := make([]uuid.UUID, len(near))
		for i, txn := range near {
			ids[i] = txn.ID
		}
		return RowResult{
			Index:   index,
			Status:  StatusConflict,
			Reason:  core.ErrImportConflict.Error(),
			Matches: ids,
		}
	}
	return RowResult{Index: index, Status: StatusInserted}
}

// dedupKey computes the row's key as the ledger would after sign
// normalization, so a row matches the same economic event regardless
// of how it first entered.
func (r *Reconciler) dedupKey(row core.ParsedRow) (string, bool) {
	if err := row.Validate(); err != nil {
		return "", false
	}
	normalized := row.Amount.Signed(row.InferredKind())
	return core.DedupKey(row.Date, normalized, row.Description), true
}

func (r *Reconciler) insert(row core.ParsedRow) (uuid.UUID, error) {
	id, _, err := r.store.PostUnique(core.Transaction{
		Amount:     row.Amount,
		Posted:     row.Date,
		CategoryID: r.resolveCategory(row),
		Memo:       row.Description,
		Source:     core.SourceImport,
	})
	return id, err
}

// resolveCategory maps the row's free-form hint onto an existing
// category of the inferred kind, falling back to the reserved
// uncategorized node when the hint is absent or unknown.
func (r *Reconciler) resolveCategory(row core.ParsedRow) uuid.UUID {
	kind := row.InferredKind()
	if row.CategoryHint != "" {
		if cat, ok := r.cats.FindByName(row.CategoryHint, kind); ok {
			return cat.ID
		}
		r.log.Debug("unknown category hint, using fallback",
			"hint", row.CategoryHint, "kind", string(kind))
	}
	return r.cats.Uncategorized(kind)
}
