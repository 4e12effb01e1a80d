package ledger

import (
	"iter"
	"sort"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

// Filter narrows a ledger query. Zero fields match everything.
type Filter struct {
	From       time.Time // inclusive
	To         time.Time // exclusive
	Categories map[uuid.UUID]bool
	Source     core.SourceKind
	Tombstoned bool // include tombstoned records
}

func (f Filter) matches(rec Record) bool {
	if rec.Tombstoned && !f.Tombstoned {
		return false
	}
	if !f.From.IsZero() && rec.Txn.Posted.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.Txn.Posted.Before(f.To) {
		return false
	}
	if f.Categories != nil && !f.Categories[rec.Txn.CategoryID] {
		return false
	}
	if f.Source != "" && rec.Txn.Source != f.Source {
		return false
	}
	return true
}

// Query yields the latest versions matching the filter, ordered by
// posted date ascending with ties broken by insertion sequence. The
// sequence is built from one consistent snapshot and is restartable.
func (s *Store) Query(f Filter) iter.Seq[core.Transaction] {
	recs := s.snapshot(f)
	return func(yield func(core.Transaction) bool) {
		for _, rec := range recs {
			if !yield(rec.Txn) {
				return
			}
		}
	}
}

// List is Query materialized into a slice.
func (s *Store) List(f Filter) []core.Transaction {
	recs := s.snapshot(f)
	out := make([]core.Transaction, len(recs))
	for i, rec := range recs {
		out[i] = rec.Txn
	}
	return out
}

func (s *Store) snapshot(f Filter) []Record {
	s.mu.RLock()
	recs := make([]Record, 0, len(s.latest))
	for _, idx := range s.latest {
		rec := s.log[idx]
		if f.matches(rec) {
			recs = append(recs, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Txn.Posted.Equal(recs[j].Txn.Posted) {
			return recs[i].FirstSeq < recs[j].FirstSeq
		}
		return recs[i].Txn.Posted.Before(recs[j].Txn.Posted)
	})
	return recs
}

// NearMatches returns live transactions with the same amount whose
// posted date lies within tolerance days of the given date but whose
// normalized description differs. The import reconciler classifies
// such rows as conflicts requiring manual resolution.
func (s *Store) NearMatches(date time.Time, tolerance int, amount core.Money, description string) []core.Transaction {
	norm := core.NormalizeDescription(description)
	from := date.AddDate(0, 0, -tolerance)
	to := date.AddDate(0, 0, tolerance+1)

	var out []core.Transaction
	for txn := range s.Query(Filter{From: from, To: to}) {
		if txn.Amount.Cents != amount.Cents {
			continue
		}
		if core.NormalizeDescription(txn.Memo) == norm {
			continue
		}
		out = append(out, txn)
	}
	return out
}
