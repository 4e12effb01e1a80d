package budget

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
)

// PeriodState is the derived consumption state of one budget within
// one period instance. It is recomputable from the store at any time;
// only the fired-threshold record is durable.
type PeriodState struct {
	BudgetID    uuid.UUID  `json:"budget_id"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	Limit       core.Money `json:"limit"`
	Consumed    core.Money `json:"consumed"`
	Remaining   core.Money `json:"remaining"`
	Percentage  float64    `json:"percentage"`
	Fired       []int      `json:"fired_thresholds"`
	Status      string     `json:"status"` // ok, warning, exceeded
}

// FiredMark records one threshold firing, the unit the persistence
// collaborator stores to keep at-most-once across restarts.
type FiredMark struct {
	BudgetID  uuid.UUID
	PeriodKey string
	Threshold int
}

func (m FiredMark) key() string {
	return fmt.Sprintf("%s|%s|%d", m.BudgetID, m.PeriodKey, m.Threshold)
}

// Engine evaluates budgets against the ledger. Evaluations may run
// concurrently; each reads one consistent store snapshot and threshold
// firing is serialized so the same alert never fires twice.
type Engine struct {
	mu      sync.RWMutex
	budgets map[uuid.UUID]core.Budget
	fired   map[string]bool

	store       *ledger.Store
	cats        *category.Graph
	bus         *events.Bus
	sums        *cache.LRU[int64]
	clock       func() time.Time
	fireHook    func(FiredMark)
	defaultZone string
}

// NewEngine creates a budget engine over the given store and graph.
func NewEngine(store *ledger.Store, cats *category.Graph, bus *events.Bus) *Engine {
	return &Engine{
		budgets: make(map[uuid.UUID]core.Budget),
		fired:   make(map[string]bool),
		store:   store,
		cats:    cats,
		bus:     bus,
		sums:    cache.NewLRU[int64](256, 5*time.Minute),
		clock:   time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// SetFireHook registers a callback invoked for every new threshold
// firing, used to persist marks.
func (e *Engine) SetFireHook(hook func(FiredMark)) {
	e.fireHook = hook
}

// SetDefaultZone sets the zone applied to budgets created without an
// explicit one. Empty means UTC.
func (e *Engine) SetDefaultZone(zone string) {
	e.defaultZone = zone
}

// Create registers a budget. The category must exist and be either a
// leaf or explicitly marked rollup. An existing active budget for the
// same category and period kind is closed at the next period boundary
// rather than mutated.
func (e *Engine) Create(b core.Budget) (core.Budget, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = e.clock()
	}
	if b.Period.Zone == "" {
		b.Period.Zone = e.defaultZone
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if !e.cats.Usable(b.CategoryID) {
		return core.Budget{}, core.ErrUnknownCategory
	}
	if !b.Rollup {
		for range e.cats.Descendants(b.CategoryID) {
			return core.Budget{}, core.ErrNotLeaf
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, prev := range e.budgets {
		if prev.Active() && prev.CategoryID == b.CategoryID && prev.Period.Kind == b.Period.Kind {
			inst, err := Resolve(prev.Period, e.clock())
			if err != nil {
				// Custom budget already outside its window: close now.
				prev.ClosedAt = e.clock()
			} else {
				prev.ClosedAt = inst.End
			}
			e.budgets[id] = prev
		}
	}
	e.budgets[b.ID] = b
	return b, nil
}

// Get returns a budget by id.
func (e *Engine) Get(id uuid.UUID) (core.Budget, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.budgets[id]
	return b, ok
}

// List returns all budgets ordered by creation time.
func (e *Engine) List() []core.Budget {
	e.mu.RLock()
	out := make([]core.Budget, 0, len(e.budgets))
	for _, b := range e.budgets {
		out = append(out, b)
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

// Restore inserts a budget loaded from persistence.
func (e *Engine) Restore(b core.Budget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budgets[b.ID] = b
}

// RestoreFired replays a persisted firing mark.
func (e *Engine) RestoreFired(m FiredMark) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired[m.key()] = true
}

// Evaluate computes the budget's state for the period instance
// containing the instant and fires any newly crossed thresholds,
// each at most once per period instance.
func (e *Engine) Evaluate(budgetID uuid.UUID, instant time.Time) (PeriodState, error) {
	e.mu.RLock()
	b, ok := e.budgets[budgetID]
	e.mu.RUnlock()
	if !ok {
		return PeriodState{}, core.ErrNotFound
	}

	inst, err := Resolve(b.Period, instant)
	if err != nil {
		return PeriodState{}, err
	}
	consumed := e.consumption(b, inst)

	state := PeriodState{
		BudgetID:    b.ID,
		PeriodStart: inst.Start,
		PeriodEnd:   inst.End,
		Limit:       b.Limit,
		Consumed:    core.Money{Cents: consumed},
		Remaining:   core.Money{Cents: b.Limit.Cents - consumed},
		Percentage:  float64(consumed) * 100 / float64(b.Limit.Cents),
	}

	e.mu.Lock()
	for _, threshold := range b.Thresholds {
		mark := FiredMark{BudgetID: b.ID, PeriodKey: inst.Key(), Threshold: threshold}
		if e.fired[mark.key()] {
			state.Fired = append(state.Fired, threshold)
			continue
		}
		// Exact comparison: consumed/limit >= threshold% without
		// floating point.
		if consumed*100 >= b.Limit.Cents*int64(threshold) {
			e.fired[mark.key()] = true
			state.Fired = append(state.Fired, threshold)
			if e.bus != nil {
				e.bus.Publish(events.BudgetThresholdCrossed{
					BudgetID:    b.ID,
					Threshold:   threshold,
					PeriodStart: inst.Start,
					Percentage:  int(state.Percentage),
				})
			}
			if e.fireHook != nil {
				e.fireHook(mark)
			}
		}
	}
	e.mu.Unlock()

	sort.Ints(state.Fired)
	state.Status = status(consumed, b.Limit.Cents, state.Fired)
	return state, nil
}

// EvaluateAll evaluates every active budget at the given instant.
// Custom-range budgets whose window does not contain the instant are
// skipped rather than failing the batch.
func (e *Engine) EvaluateAll(instant time.Time) ([]PeriodState, error) {
	var out []PeriodState
	for _, b := range e.List() {
		if !b.Active() {
			continue
		}
		state, err := e.Evaluate(b.ID, instant)
		if err == core.ErrOutsidePeriod {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, state)
	}
	return out, nil
}

// consumption sums the window's live transactions for the budget's
// category set, normalized to a non-negative consumption magnitude.
// Sums are cached keyed on the store version, so any ledger mutation
// invalidates naturally.
func (e *Engine) consumption(b core.Budget, inst Instance) int64 {
	key := fmt.Sprintf("%s|%s|%d", b.ID, inst.Key(), e.store.Version())
	if cents, ok := e.sums.Get(key); ok {
		return cents
	}

	var catIDs map[uuid.UUID]bool
	if b.Rollup {
		catIDs = e.cats.SubtreeIDs(b.CategoryID)
	} else {
		catIDs = map[uuid.UUID]bool{b.CategoryID: true}
	}

	sum := e.store.SumRange(inst.Start, inst.End, catIDs).Cents
	kind, _ := e.cats.KindOf(b.CategoryID)
	if kind == core.KindExpense {
		sum = -sum
	}
	if sum < 0 {
		// Refunds exceeding spending: nothing consumed.
		sum = 0
	}
	e.sums.Set(key, sum)
	return sum
}

func status(consumed, limit int64, fired []int) string {
	if consumed >= limit {
		return "exceeded"
	}
	if len(fired) > 0 {
		return "warning"
	}
	return "ok"
}
