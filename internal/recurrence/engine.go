// Package recurrence expands recurring-transaction templates into
// concrete posted occurrences. Materialization is idempotent: the
// per-template watermark only moves forward and every occurrence
// carries a dedup key, so overlapping runs never double-post.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
)

// occurrenceBound caps the schedule walk of a single run. The
// lookahead already bounds the window; this guards against degenerate
// schedules. Skipped historical occurrences count against it, so it is
// sized for decades of daily schedules.
const occurrenceBound = 100000

// Engine owns the recurrence templates. Materialization of different
// templates may run concurrently; runs for the same template serialize
// on a per-template lock because the watermark is not safe for
// concurrent advancement.
type Engine struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]core.Template
	locks     map[uuid.UUID]*sync.Mutex

	store     *ledger.Store
	bus       *events.Bus
	lookahead time.Duration
	clock     func() time.Time
}

// Occurrence is one projected (not yet posted) template occurrence.
type Occurrence struct {
	TemplateID uuid.UUID
	Date       time.Time
	Amount     core.Money
	CategoryID uuid.UUID
	Memo       string
}

// NewEngine creates an engine posting into the given store. The
// lookahead bounds how far past "now" a watermark may advance.
func NewEngine(store *ledger.Store, bus *events.Bus, lookahead time.Duration) *Engine {
	return &Engine{
		templates: make(map[uuid.UUID]core.Template),
		locks:     make(map[uuid.UUID]*sync.Mutex),
		store:     store,
		bus:       bus,
		lookahead: lookahead,
		clock:     time.Now,
	}
}

// SetClock injects a deterministic clock for tests and schedulers.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Create registers a template. The creation instant anchors the
// schedule; the watermark starts unset.
func (e *Engine) Create(tpl core.Template) (core.Template, error) {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = e.clock()
	}
	tpl.LastThrough = time.Time{}
	tpl.Occurrences = 0
	if err := tpl.Validate(); err != nil {
		return core.Template{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tpl.ID] = tpl
	return tpl, nil
}

// Edit updates the template's shape and schedule. Edits only affect
// occurrences materialized afterwards; posted history is immutable.
func (e *Engine) Edit(id uuid.UUID, amount *core.Money, memo *string, sched *core.Schedule) (core.Template, error) {
	lock := e.templateLock(id)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	tpl, ok := e.templates[id]
	if !ok {
		return core.Template{}, core.ErrNotFound
	}
	if amount != nil {
		tpl.Amount = *amount
	}
	if memo != nil {
		tpl.Memo = *memo
	}
	if sched != nil {
		tpl.Schedule = *sched
	}
	if err := tpl.Validate(); err != nil {
		return core.Template{}, err
	}
	e.templates[id] = tpl
	return tpl, nil
}

// Get returns a template by id.
func (e *Engine) Get(id uuid.UUID) (core.Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[id]
	return tpl, ok
}

// List returns all templates ordered by creation time.
func (e *Engine) List() []core.Template {
	e.mu.RLock()
	out := make([]core.Template, 0, len(e.templates))
	for _, tpl := range e.templates {
		out = append(out, tpl)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Restore inserts a template loaded from persistence as-is, watermark
// included.
func (e *Engine) Restore(tpl core.Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tpl.ID] = tpl
}

// Materialize posts every occurrence due in (watermark, through] and
// advances the watermark. Re-running with the same through is a no-op.
// Fails with ErrTemplateEnded when invoked on a template already past
// its end condition.
func (e *Engine) Materialize(ctx context.Context, id uuid.UUID, through time.Time) ([]core.Transaction, error) {
	lock := e.templateLock(id)
	lock.Lock()
	defer lock.Unlock()

	e.mu.RLock()
	tpl, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}

	// The watermark never exceeds now + lookahead.
	if limit := e.clock().Add(e.lookahead); through.After(limit) {
		through = limit
	}

	cursor := tpl.LastThrough
	if cursor.Before(tpl.CreatedAt) {
		cursor = tpl.CreatedAt
	}
	if tpl.Ended(cursor) {
		return nil, core.ErrTemplateEnded
	}
	if !through.After(cursor) && !tpl.LastThrough.IsZero() {
		return nil, nil // window already covered
	}

	var posted []core.Transaction
	occurrences := tpl.Occurrences
	for n := 0; n < occurrenceBound; n++ {
		if err := ctx.Err(); err != nil {
			return posted, err
		}
		date := tpl.OccurrenceDate(n)
		if date.After(through) {
			break
		}
		if !tpl.Schedule.EndDate.IsZero() && date.After(tpl.Schedule.EndDate) {
			break
		}
		if dateBefore(date, tpl) {
			continue
		}
		if tpl.Schedule.MaxOccurrence > 0 && occurrences >= tpl.Schedule.MaxOccurrence {
			break
		}

		txn := core.Transaction{
			Amount:     tpl.Amount,
			Posted:     date,
			CategoryID: tpl.CategoryID,
			Memo:       tpl.Memo,
			Source:     core.SourceRecurring,
			TemplateID: tpl.ID,
		}
		txnID, created, err := e.store.PostUnique(txn)
		if err != nil {
			return posted, fmt.Errorf("materialize template %s: %w", tpl.ID, err)
		}
		occurrences++
		if !created {
			// The same economic event already exists (manual entry or
			// import); the occurrence is consumed without posting.
			continue
		}
		txn.ID = txnID
		posted = append(posted, txn)
		if e.bus != nil {
			e.bus.Publish(events.RecurringPosted{
				TransactionID: txnID, TemplateID: tpl.ID, Posted: date,
			})
		}
	}

	// Advance the watermark, never backwards.
	e.mu.Lock()
	current := e.templates[id]
	if through.After(current.LastThrough) {
		current.LastThrough = through
	}
	if occurrences > current.Occurrences {
		current.Occurrences = occurrences
	}
	e.templates[id] = current
	e.mu.Unlock()

	return posted, nil
}

// dateBefore reports whether the occurrence date falls before the
// window the current run covers.
func dateBefore(date time.Time, tpl core.Template) bool {
	if tpl.LastThrough.IsZero() {
		// First run: everything from the creation day onwards is due.
		created := tpl.CreatedAt
		createdDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, created.Location())
		return date.Before(createdDay)
	}
	return !date.After(tpl.LastThrough)
}

// MaterializeAll runs Materialize for every template. Ended templates
// are skipped and logged rather than failing the batch.
func (e *Engine) MaterializeAll(ctx context.Context, through time.Time) (int, error) {
	total := 0
	for _, tpl := range e.List() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		posted, err := e.Materialize(ctx, tpl.ID, through)
		if errors.Is(err, core.ErrTemplateEnded) {
			slog.Debug("skipping ended template", "template_id", tpl.ID)
			continue
		}
		if err != nil {
			return total, err
		}
		total += len(posted)
	}
	return total, nil
}

// Upcoming projects, without posting, every occurrence due after each
// template's watermark up to through. The result is ordered by date.
func (e *Engine) Upcoming(through time.Time) []Occurrence {
	var out []Occurrence
	for _, tpl := range e.List() {
		occurrences := tpl.Occurrences
		for n := 0; n < occurrenceBound; n++ {
			date := tpl.OccurrenceDate(n)
			if date.After(through) {
				break
			}
			if !tpl.Schedule.EndDate.IsZero() && date.After(tpl.Schedule.EndDate) {
				break
			}
			if dateBefore(date, tpl) {
				continue
			}
			if tpl.Schedule.MaxOccurrence > 0 && occurrences >= tpl.Schedule.MaxOccurrence {
				break
			}
			occurrences++
			out = append(out, Occurrence{
				TemplateID: tpl.ID,
				Date:       date,
				Amount:     tpl.Amount,
				CategoryID: tpl.CategoryID,
				Memo:       tpl.Memo,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (e *Engine) templateLock(id uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}
