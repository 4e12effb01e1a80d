// Package ledger implements the append-mostly transaction store. All
// mutations flow through a single lock-owned write path that assigns a
// monotonic insertion sequence; amendments and tombstones append new
// versioned records instead of overwriting, so historical balance
// queries stay correct regardless of later edits.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

// KindResolver is the category-graph surface the store needs: kind
// lookup for sign normalization and a usability check for references.
type KindResolver interface {
	KindOf(id uuid.UUID) (core.Kind, bool)
	Usable(id uuid.UUID) bool
}

// Record is one version of a transaction in the append-only log. Seq
// is the insertion sequence of this version; FirstSeq is the sequence
// of the transaction's first version and breaks ordering ties.
type Record struct {
	Seq        int64
	FirstSeq   int64
	Txn        core.Transaction
	Tombstoned bool
}

// Store is the ledger. Safe for concurrent use: one writer at a time,
// readers observe consistent snapshots.
type Store struct {
	mu      sync.RWMutex
	log     []Record
	latest  map[uuid.UUID]int
	dedup   map[string][]uuid.UUID // live (non-tombstoned) transactions per dedup key
	seq     int64
	version int64
	cats    KindResolver
}

// NewStore creates an empty ledger backed by the given category graph.
func NewStore(cats KindResolver) *Store {
	return &Store{
		latest: make(map[uuid.UUID]int),
		dedup:  make(map[string][]uuid.UUID),
		cats:   cats,
	}
}

// Post appends a new transaction. The amount's sign is normalized from
// the category kind (expense negative, income positive); a zero amount
// or an unusable category rejects the whole operation. Returns the
// assigned transaction id.
func (s *Store) Post(txn core.Transaction) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postLocked(txn)
}

// PostUnique behaves like Post but skips the append when a live
// transaction already carries the same dedup key. The second return
// value reports whether a new transaction was created.
func (s *Store) PostUnique(txn core.Transaction) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The key must be derived from the normalized amount, or a caller
	// passing a positive magnitude for an expense would never collide
	// with the manual entry of the same event.
	kind, ok := s.cats.KindOf(txn.CategoryID)
	if !ok {
		return uuid.Nil, false, core.ErrUnknownCategory
	}
	txn.Amount = txn.Amount.Signed(kind)

	key := txn.DedupKey
	if key == "" {
		key = core.DedupKey(txn.Posted, txn.Amount, txn.Memo)
		txn.DedupKey = key
	}
	if ids := s.dedup[key]; len(ids) > 0 {
		return ids[0], false, nil
	}
	id, err := s.postLocked(txn)
	return id, err == nil, err
}

func (s *Store) postLocked(txn core.Transaction) (uuid.UUID, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	kind, ok := s.cats.KindOf(txn.CategoryID)
	if !ok {
		return uuid.Nil, core.ErrUnknownCategory
	}
	if !s.cats.Usable(txn.CategoryID) {
		return uuid.Nil, core.ErrCategoryDeleted
	}
	txn.Amount = txn.Amount.Signed(kind)
	if err := txn.Validate(); err != nil {
		return uuid.Nil, err
	}
	if _, exists := s.latest[txn.ID]; exists {
		return uuid.Nil, fmt.Errorf("post transaction %s: duplicate id", txn.ID)
	}
	if txn.DedupKey == "" {
		txn.DedupKey = core.DedupKey(txn.Posted, txn.Amount, txn.Memo)
	}

	s.seq++
	s.log = append(s.log, Record{Seq: s.seq, FirstSeq: s.seq, Txn: txn})
	s.latest[txn.ID] = len(s.log) - 1
	s.dedup[txn.DedupKey] = append(s.dedup[txn.DedupKey], txn.ID)
	s.version++
	return txn.ID, nil
}

// Amend changes the category reference and/or memo of a posted
// transaction by appending a new version. Amount, date and source are
// immutable history. Reassignment must keep the category kind so the
// sign invariant holds.
func (s *Store) Amend(id uuid.UUID, categoryID *uuid.UUID, memo *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.latest[id]
	if !ok {
		return core.ErrNotFound
	}
	rec := s.log[idx]
	if rec.Tombstoned {
		return core.ErrAlreadyTombstoned
	}

	txn := rec.Txn
	if categoryID != nil {
		oldKind, _ := s.cats.KindOf(txn.CategoryID)
		newKind, known := s.cats.KindOf(*categoryID)
		if !known {
			return core.ErrUnknownCategory
		}
		if !s.cats.Usable(*categoryID) {
			return core.ErrCategoryDeleted
		}
		if newKind != oldKind {
			return fmt.Errorf("%w: cannot move a %s transaction to a %s category", core.ErrKindMismatch, oldKind, newKind)
		}
		txn.CategoryID = *categoryID
	}
	if memo != nil {
		txn.Memo = *memo
		if err := txn.Validate(); err != nil {
			return err
		}
	}

	s.seq++
	s.log = append(s.log, Record{Seq: s.seq, FirstSeq: rec.FirstSeq, Txn: txn})
	s.latest[id] = len(s.log) - 1
	s.version++
	return nil
}

// Tombstone marks a transaction deleted. The record stays in the log
// forever for audit and export fidelity.
func (s *Store) Tombstone(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.latest[id]
	if !ok {
		return core.ErrNotFound
	}
	rec := s.log[idx]
	if rec.Tombstoned {
		return core.ErrAlreadyTombstoned
	}

	s.seq++
	s.log = append(s.log, Record{Seq: s.seq, FirstSeq: rec.FirstSeq, Txn: rec.Txn, Tombstoned: true})
	s.latest[id] = len(s.log) - 1
	s.removeDedup(rec.Txn.DedupKey, id)
	s.version++
	return nil
}

// ReassignCategory moves every live transaction referencing from onto
// to, appending one amendment version each. Used when a category is
// soft-deleted. Returns the number of transactions moved.
func (s *Store) ReassignCategory(from, to uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for id, idx := range s.latest {
		rec := s.log[idx]
		if rec.Tombstoned || rec.Txn.CategoryID != from {
			continue
		}
		txn := rec.Txn
		txn.CategoryID = to
		s.seq++
		s.log = append(s.log, Record{Seq: s.seq, FirstSeq: rec.FirstSeq, Txn: txn})
		s.latest[id] = len(s.log) - 1
		moved++
	}
	if moved > 0 {
		s.version++
	}
	return moved
}

// Get returns the latest version of a transaction and whether it is
// tombstoned.
func (s *Store) Get(id uuid.UUID) (core.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.latest[id]
	if !ok {
		return core.Transaction{}, false, core.ErrNotFound
	}
	rec := s.log[idx]
	return rec.Txn, rec.Tombstoned, nil
}

// Version is a monotonic mutation counter. Read-side caches key on it
// so any mutation invalidates them naturally.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// HasLiveDedup reports whether a live transaction carries the key.
func (s *Store) HasLiveDedup(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dedup[key]) > 0
}

// History returns a copy of the full version log in insertion order,
// for audit, persistence and replay verification.
func (s *Store) History() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.log))
	copy(out, s.log)
	return out
}

// RecordsSince returns the log records with Seq greater than the given
// sequence, in insertion order. The persistence journaler uses it to
// flush only what it has not yet written.
func (s *Store) RecordsSince(seq int64) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := len(s.log)
	for i > 0 && s.log[i-1].Seq > seq {
		i--
	}
	out := make([]Record, len(s.log)-i)
	copy(out, s.log[i:])
	return out
}

// LoadHistory replays a persisted version log into an empty store.
func (s *Store) LoadHistory(recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.log) > 0 {
		return fmt.Errorf("load history: store not empty")
	}
	for _, rec := range recs {
		if rec.Seq <= s.seq {
			return fmt.Errorf("load history: %w at seq %d", core.ErrNonMonotonic, rec.Seq)
		}
		s.seq = rec.Seq
		s.log = append(s.log, rec)
		id := rec.Txn.ID
		if prev, ok := s.latest[id]; ok {
			// Later version supersedes: drop the old dedup entry.
			s.removeDedup(s.log[prev].Txn.DedupKey, id)
		}
		s.latest[id] = len(s.log) - 1
		if !rec.Tombstoned {
			s.dedup[rec.Txn.DedupKey] = append(s.dedup[rec.Txn.DedupKey], id)
		}
	}
	s.version++
	return nil
}

func (s *Store) removeDedup(key string, id uuid.UUID) {
	ids := s.dedup[key]
	for i, other := range ids {
		if other == id {
			s.dedup[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.dedup[key]) == 0 {
		delete(s.dedup, key)
	}
}

// sumLocked adds the live amounts inside [start, end) for the given
// category set (nil means all categories). Callers hold a read lock.
func (s *Store) sumLocked(start, end time.Time, catIDs map[uuid.UUID]bool) core.Money {
	var total int64
	for _, idx := range s.latest {
		rec := s.log[idx]
		if rec.Tombstoned {
			continue
		}
		if !start.IsZero() && rec.Txn.Posted.Before(start) {
			continue
		}
		if !end.IsZero() && !rec.Txn.Posted.Before(end) {
			continue
		}
		if catIDs != nil && !catIDs[rec.Txn.CategoryID] {
			continue
		}
		total += rec.Txn.Amount.Cents
	}
	return core.Money{Cents: total}
}

// SumRange adds the live amounts posted inside [start, end) for the
// category set, as one consistent snapshot.
func (s *Store) SumRange(start, end time.Time, catIDs map[uuid.UUID]bool) core.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumLocked(start, end, catIDs)
}

// BalanceAsOf returns the signed sum of live transactions posted on or
// before the given date.
func (s *Store) BalanceAsOf(asOf time.Time) core.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumLocked(time.Time{}, asOf.AddDate(0, 0, 1), nil)
}
