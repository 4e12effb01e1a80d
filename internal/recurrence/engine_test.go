package recurrence

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/ledger"
)

func newFixture(t *testing.T) (*Engine, *ledger.Store, core.Category, *events.Bus) {
	t.Helper()
	g := category.NewGraph()
	rent, err := g.Add("rent", core.KindExpense, nil)
	if err != nil {
		t.Fatalf("add rent: %v", err)
	}
	store := ledger.NewStore(g)
	bus := events.NewBus()
	engine := NewEngine(store, bus, 90*24*time.Hour)
	engine.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	})
	return engine, store, rent, bus
}

func monthlyTemplate(t *testing.T, e *Engine, catID core.Category, anchorDay int) core.Template {
	t.Helper()
	tpl, err := e.Create(core.Template{
		Amount:     core.Money{Cents: -120000},
		CategoryID: catID.ID,
		Memo:       "rent",
		CreatedAt:  time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Schedule:   core.Schedule{Unit: core.UnitMonth, Count: 1, AnchorDay: anchorDay},
	})
	if err != nil {
		t.Fatalf("Create template: %v", err)
	}
	return tpl
}

func TestMaterializeMonthlyClampsFebruary(t *testing.T) {
	engine, _, rent, _ := newFixture(t)
	tpl := monthlyTemplate(t, engine, rent, 31)

	through := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	posted, err := engine.Materialize(context.Background(), tpl.ID, through)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(posted) != 1 {
		t.Fatalf("posted %d occurrences, want 1 (Jan 31)", len(posted))
	}
	if want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC); !posted[0].Posted.Equal(want) {
		t.Errorf("occurrence posted %s, want %s", posted[0].Posted, want)
	}

	// Advance past February: non-leap year clamps to Feb 28.
	through = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posted, err = engine.Materialize(context.Background(), tpl.ID, through)
	if err != nil {
		t.Fatalf("second Materialize failed: %v", err)
	}
	if len(posted) != 1 {
		t.Fatalf("posted %d occurrences, want 1 (Feb 28)", len(posted))
	}
	if want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC); !posted[0].Posted.Equal(want) {
		t.Errorf("occurrence posted %s, want %s", posted[0].Posted, want)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	engine, store, rent, _ := newFixture(t)
	tpl := monthlyTemplate(t, engine, rent, 15)

	through := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	first, err := engine.Materialize(context.Background(), tpl.ID, through)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("posted %d, want 3 (Jan 15, Feb 15, Mar 15)", len(first))
	}

	second, err := engine.Materialize(context.Background(), tpl.ID, through)
	if err != nil {
		t.Fatalf("re-Materialize failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("re-run posted %d new occurrences, want 0", len(second))
	}

	count := 0
	for range store.Query(ledger.Filter{Source: core.SourceRecurring}) {
		count++
	}
	if count != 3 {
		t.Errorf("store holds %d recurring transactions, want 3", count)
	}
}

func TestMaterializeSkipsManualDuplicate(t *testing.T) {
	engine, store, rent, _ := newFixture(t)
	tpl := monthlyTemplate(t, engine, rent, 15)

	// The user already entered February's rent by hand.
	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	if _, err := store.Post(core.Transaction{
		Amount: core.Money{Cents: -120000}, Posted: feb,
		CategoryID: rent.ID, Memo: "Rent", Source: core.SourceManual,
	}); err != nil {
		t.Fatalf("manual post: %v", err)
	}

	posted, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	for _, txn := range posted {
		if txn.Posted.Equal(feb) {
			t.Error("February occurrence double-posted over the manual entry")
		}
	}
}

func TestMaterializePositiveMagnitudeDeduplicates(t *testing.T) {
	engine, store, rent, _ := newFixture(t)

	// The template carries a positive magnitude; sign comes from the
	// category kind at posting time.
	tpl, err := engine.Create(core.Template{
		Amount:     core.Money{Cents: 120000},
		CategoryID: rent.ID,
		Memo:       "rent",
		CreatedAt:  time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Schedule:   core.Schedule{Unit: core.UnitMonth, Count: 1, AnchorDay: 15},
	})
	if err != nil {
		t.Fatalf("Create template: %v", err)
	}

	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	if _, err := store.Post(core.Transaction{
		Amount: core.Money{Cents: -120000}, Posted: feb,
		CategoryID: rent.ID, Memo: "Rent", Source: core.SourceManual,
	}); err != nil {
		t.Fatalf("manual post: %v", err)
	}

	if _, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	live := 0
	for txn := range store.Query(ledger.Filter{From: feb, To: feb.AddDate(0, 0, 1)}) {
		live++
		if txn.Amount.Cents != -120000 {
			t.Errorf("amount = %d, want -120000", txn.Amount.Cents)
		}
	}
	if live != 1 {
		t.Errorf("ledger holds %d live transactions on Feb 15, want 1", live)
	}
}

func TestMaterializeEndConditions(t *testing.T) {
	engine, _, rent, _ := newFixture(t)

	t.Run("max occurrences", func(t *testing.T) {
		tpl, err := engine.Create(core.Template{
			Amount: core.Money{Cents: -5000}, CategoryID: rent.ID, Memo: "installment",
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Schedule:  core.Schedule{Unit: core.UnitMonth, Count: 1, AnchorDay: 1, MaxOccurrence: 2},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		posted, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}
		if len(posted) != 2 {
			t.Fatalf("posted %d, want 2", len(posted))
		}

		_, err = engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
		if !errors.Is(err, core.ErrTemplateEnded) {
			t.Errorf("Materialize past end = %v, want ErrTemplateEnded", err)
		}
	})

	t.Run("end date", func(t *testing.T) {
		tpl, err := engine.Create(core.Template{
			Amount: core.Money{Cents: -5000}, CategoryID: rent.ID, Memo: "short lease",
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Schedule: core.Schedule{Unit: core.UnitMonth, Count: 1, AnchorDay: 1,
				EndDate: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		posted, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}
		if len(posted) != 2 { // Jan 1, Feb 1
			t.Errorf("posted %d, want 2", len(posted))
		}
	})
}

func TestMaterializeLookaheadCap(t *testing.T) {
	engine, _, rent, _ := newFixture(t)
	tpl := monthlyTemplate(t, engine, rent, 15)

	// Clock is 2025-06-01, lookahead 90 days: a request far into the
	// future is capped around 2025-08-30.
	posted, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	for _, txn := range posted {
		if txn.Posted.After(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("occurrence %s posted beyond the lookahead cap", txn.Posted)
		}
	}

	got, _ := engine.Get(tpl.ID)
	if got.LastThrough.After(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("watermark %s exceeded now + lookahead", got.LastThrough)
	}
}

func TestMaterializeEmitsEvents(t *testing.T) {
	engine, _, rent, bus := newFixture(t)
	sub := bus.Subscribe(32)
	tpl := monthlyTemplate(t, engine, rent, 15)

	posted, err := engine.Materialize(context.Background(), tpl.ID, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	bus.Close()

	received := 0
	for e := range sub.Events() {
		ev, ok := e.(events.RecurringPosted)
		if !ok {
			t.Fatalf("unexpected event type %T", e)
		}
		if ev.TemplateID != tpl.ID {
			t.Errorf("event for template %s, want %s", ev.TemplateID, tpl.ID)
		}
		received++
	}
	if received != len(posted) {
		t.Errorf("received %d events, want %d", received, len(posted))
	}
}

func TestUpcomingDoesNotPost(t *testing.T) {
	engine, store, rent, _ := newFixture(t)
	monthlyTemplate(t, engine, rent, 15)

	occ := engine.Upcoming(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if len(occ) != 3 {
		t.Fatalf("Upcoming returned %d, want 3", len(occ))
	}
	for i := 1; i < len(occ); i++ {
		if occ[i].Date.Before(occ[i-1].Date) {
			t.Errorf("occurrences out of order: %v", occ)
		}
	}

	if n := len(store.List(ledger.Filter{})); n != 0 {
		t.Errorf("Upcoming posted %d transactions", n)
	}
}
