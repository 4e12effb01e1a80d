// Package goal tracks savings targets. A goal's progress is derived
// from its contribution links at read time; the tracker stores the
// links and the milestone firings, never an accumulated total.
package goal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
)

// Milestones are the progress percentages announced once per goal.
var Milestones = []int{25, 50, 75, 100}

// Contribution ties an amount to a goal. Linked contributions point at
// a ledger transaction and follow its lifecycle: tombstoning the
// transaction removes the contribution from the derived total. Direct
// contributions (sweeps, manual top-ups outside the ledger) carry
// their own amount.
type Contribution struct {
	ID     uuid.UUID
	GoalID uuid.UUID
	TxnID  uuid.UUID // uuid.Nil for direct contributions
	Amount core.Money
	At     time.Time
}

// Progress is the derived state of a goal.
type Progress struct {
	GoalID      uuid.UUID  `json:"goal_id"`
	Accumulated core.Money `json:"accumulated"`
	Remaining   core.Money `json:"remaining"`
	Percentage  float64    `json:"percentage"`
	Milestones  []int      `json:"milestones"`
	OnTrack     bool       `json:"on_track"`
}

// MilestoneMark records one milestone firing for persistence.
type MilestoneMark struct {
	GoalID    uuid.UUID
	Milestone int
}

func (m MilestoneMark) key() string {
	return fmt.Sprintf("%s|%d", m.GoalID, m.Milestone)
}

// Tracker manages goals and their contributions. Safe for concurrent
// use.
type Tracker struct {
	mu       sync.RWMutex
	goals    map[uuid.UUID]core.Goal
	contribs map[uuid.UUID][]Contribution
	fired    map[string]bool

	store    *ledger.Store
	bus      *events.Bus
	clock    func() time.Time
	fireHook func(MilestoneMark)
}

// NewTracker creates a tracker over the given ledger.
func NewTracker(store *ledger.Store, bus *events.Bus) *Tracker {
	return &Tracker{
		goals:    make(map[uuid.UUID]core.Goal),
		contribs: make(map[uuid.UUID][]Contribution),
		fired:    make(map[string]bool),
		store:    store,
		bus:      bus,
		clock:    time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.clock = clock
}

// SetFireHook registers a callback invoked for every new milestone
// firing, used to persist marks.
func (t *Tracker) SetFireHook(hook func(MilestoneMark)) {
	t.fireHook = hook
}

// Create registers a goal.
func (t *Tracker) Create(g core.Goal) (core.Goal, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = t.clock()
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.goals[g.ID] = g
	return g, nil
}

// Get returns a goal by id.
func (t *Tracker) Get(id uuid.UUID) (core.Goal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.goals[id]
	return g, ok
}

// List returns all goals ordered by creation time.
func (t *Tracker) List() []core.Goal {
	t.mu.RLock()
	out := make([]core.Goal, 0, len(t.goals))
	for _, g := range t.goals {
		out = append(out, g)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Restore inserts a goal loaded from persistence.
func (t *Tracker) Restore(g core.Goal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.goals[g.ID] = g
}

// RestoreContribution replays a persisted contribution link.
func (t *Tracker) RestoreContribution(c Contribution) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contribs[c.GoalID] = append(t.contribs[c.GoalID], c)
}

// RestoreMilestone replays a persisted milestone mark.
func (t *Tracker) RestoreMilestone(m MilestoneMark) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired[m.key()] = true
}

// Link ties an existing ledger transaction to the goal. The amount is
// resolved from the ledger at read time, so later tombstones subtract
// naturally. A transaction links to a goal at most once.
func (t *Tracker) Link(goalID, txnID uuid.UUID) (Contribution, error) {
	if _, tombstoned, err := t.store.Get(txnID); err != nil {
		return Contribution{}, err
	} else if tombstoned {
		return Contribution{}, core.ErrAlreadyTombstoned
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.goals[goalID]; !ok {
		return Contribution{}, core.ErrNotFound
	}
	for _, c := range t.contribs[goalID] {
		if c.TxnID == txnID {
			return c, nil
		}
	}
	c := Contribution{ID: uuid.New(), GoalID: goalID, TxnID: txnID, At: t.clock()}
	t.contribs[goalID] = append(t.contribs[goalID], c)
	return c, nil
}

// Contribute records a direct contribution with its own amount.
func (t *Tracker) Contribute(goalID uuid.UUID, amount core.Money, at time.Time) (Contribution, error) {
	if amount.Cents <= 0 {
		return Contribution{}, core.ErrInvalidAmount
	}
	if at.IsZero() {
		at = t.clock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.goals[goalID]; !ok {
		return Contribution{}, core.ErrNotFound
	}
	c := Contribution{ID: uuid.New(), GoalID: goalID, Amount: amount, At: at}
	t.contribs[goalID] = append(t.contribs[goalID], c)
	return c, nil
}

// Contributions returns the goal's links ordered by time.
func (t *Tracker) Contributions(goalID uuid.UUID) []Contribution {
	t.mu.RLock()
	out := make([]Contribution, len(t.contribs[goalID]))
	copy(out, t.contribs[goalID])
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Sweep applies the goal's automatic sweep share to a reported surplus
// and records the resulting direct contribution. A zero sweep share or
// a non-positive surplus sweeps nothing.
func (t *Tracker) Sweep(goalID uuid.UUID, surplus core.Money, at time.Time) (Contribution, error) {
	t.mu.RLock()
	g, ok := t.goals[goalID]
	t.mu.RUnlock()
	if !ok {
		return Contribution{}, core.ErrNotFound
	}
	if g.SweepPercent == 0 || surplus.Cents <= 0 {
		return Contribution{}, nil
	}
	amount := core.Money{Cents: surplus.Cents * int64(g.SweepPercent) / 100}
	if amount.Cents == 0 {
		return Contribution{}, nil
	}
	return t.Contribute(goalID, amount, at)
}

// Progress derives the goal's state and fires any newly crossed
// milestones, each at most once per goal.
func (t *Tracker) Progress(goalID uuid.UUID) (Progress, error) {
	t.mu.RLock()
	g, ok := t.goals[goalID]
	contribs := make([]Contribution, len(t.contribs[goalID]))
	copy(contribs, t.contribs[goalID])
	t.mu.RUnlock()
	if !ok {
		return Progress{}, core.ErrNotFound
	}

	var accumulated int64
	for _, c := range contribs {
		if c.TxnID == uuid.Nil {
			accumulated += c.Amount.Cents
			continue
		}
		txn, tombstoned, err := t.store.Get(c.TxnID)
		if err != nil || tombstoned {
			continue
		}
		accumulated += txn.Amount.Abs().Cents
	}

	p := Progress{
		GoalID:      g.ID,
		Accumulated: core.Money{Cents: accumulated},
		Remaining:   core.Money{Cents: max64(g.Target.Cents-accumulated, 0)},
		Percentage:  float64(accumulated) * 100 / float64(g.Target.Cents),
		OnTrack:     t.onTrack(g, accumulated),
	}

	t.mu.Lock()
	for _, milestone := range Milestones {
		mark := MilestoneMark{GoalID: g.ID, Milestone: milestone}
		if t.fired[mark.key()] {
			p.Milestones = append(p.Milestones, milestone)
			continue
		}
		if accumulated*100 >= g.Target.Cents*int64(milestone) {
			t.fired[mark.key()] = true
			p.Milestones = append(p.Milestones, milestone)
			if t.bus != nil {
				t.bus.Publish(events.GoalMilestone{GoalID: g.ID, Milestone: milestone})
			}
			if t.fireHook != nil {
				t.fireHook(mark)
			}
		}
	}
	t.mu.Unlock()

	sort.Ints(p.Milestones)
	return p, nil
}

// onTrack compares accumulated progress against a linear pace from
// creation to the target date. Goals without a target date are always
// on track.
func (t *Tracker) onTrack(g core.Goal, accumulated int64) bool {
	if g.TargetDate.IsZero() {
		return true
	}
	now := t.clock()
	if !now.After(g.CreatedAt) {
		return true
	}
	if !now.Before(g.TargetDate) {
		return accumulated >= g.Target.Cents
	}
	elapsed := now.Sub(g.CreatedAt)
	total := g.TargetDate.Sub(g.CreatedAt)
	expected := g.Target.Cents * int64(elapsed) / int64(total)
	return accumulated >= expected
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
