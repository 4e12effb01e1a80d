package worker

import (
	"context"
	"testing"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/ledger"
	"bilancio/internal/recurrence"
)

func TestSchedulerTickMaterializesAndEvaluates(t *testing.T) {
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	bus := events.NewBus()
	cats := category.NewGraph()
	store := ledger.NewStore(cats)
	rec := recurrence.NewEngine(store, bus, 31*24*time.Hour)
	rec.SetClock(clock)
	budgets := budget.NewEngine(store, cats, bus)
	budgets.SetClock(clock)

	rent, err := cats.Add("rent", core.KindExpense, nil)
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	tpl, err := rec.Create(core.Template{
		Amount:     core.Money{Cents: 80000},
		CategoryID: rent.ID,
		Memo:       "rent",
		Schedule:   core.Schedule{Unit: core.UnitMonth, Count: 1, AnchorDay: 1},
		CreatedAt:  time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, err := budgets.Create(core.Budget{
		CategoryID: rent.ID,
		Period:     core.PeriodSpec{Kind: core.PeriodMonthly},
		Limit:      core.Money{Cents: 100000},
		Thresholds: []int{50},
	}); err != nil {
		t.Fatalf("create budget: %v", err)
	}

	sub := bus.Subscribe(16)
	s := NewScheduler(rec, budgets)
	s.clock = clock
	s.Tick(context.Background(), now)

	// April 1, May 1 and June 1 are due by mid June.
	got, _ := rec.Get(tpl.ID)
	if got.Occurrences != 3 {
		t.Fatalf("occurrences = %d, want 3", got.Occurrences)
	}

	var posted, crossed int
	timeout := time.After(time.Second)
	for posted+crossed < 4 {
		select {
		case e := <-sub.Events():
			switch e.(type) {
			case events.RecurringPosted:
				posted++
			case events.BudgetThresholdCrossed:
				crossed++
			}
		case <-timeout:
			t.Fatalf("timed out: posted=%d crossed=%d", posted, crossed)
		}
	}
	if posted != 3 || crossed != 1 {
		t.Fatalf("posted=%d crossed=%d", posted, crossed)
	}

	// A second tick at the same instant is a no-op.
	s.Tick(context.Background(), now)
	got, _ = rec.Get(tpl.ID)
	if got.Occurrences != 3 {
		t.Fatalf("re-tick occurrences = %d", got.Occurrences)
	}
}
