package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type fixture struct {
	cats  *category.Graph
	store *ledger.Store
	rec   *Reconciler
	food  core.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cats := category.NewGraph()
	food, err := cats.Add("food", core.KindExpense, nil)
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	store := ledger.NewStore(cats)
	return &fixture{
		cats:  cats,
		store: store,
		rec:   NewReconciler(store, cats, 3),
		food:  food,
	}
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestReconcileInsertsAndClassifies(t *testing.T) {
	f := newFixture(t)

	// Pre-existing manual transaction: -42.00 "Coffee Shop" on the 5th.
	if _, err := f.store.Post(core.Transaction{
		Amount:     core.Money{Cents: 4200},
		Posted:     day(5),
		CategoryID: f.food.ID,
		Memo:       "Coffee Shop",
		Source:     core.SourceManual,
	}); err != nil {
		t.Fatal(err)
	}

	rows := []core.ParsedRow{
		// Exact duplicate of the manual one (same date, amount, memo
		// up to normalization).
		{Date: day(5), Amount: core.Money{Cents: -4200}, Description: "COFFEE  shop"},
		// Same amount two days away with a different description:
		// conflict.
		{Date: day(7), Amount: core.Money{Cents: -4200}, Description: "Unknown Vendor"},
		// Clean insert with a known category hint.
		{Date: day(8), Amount: core.Money{Cents: -1500}, Description: "Lunch", CategoryHint: "Food"},
		// Clean insert, no hint: lands in uncategorized.
		{Date: day(9), Amount: core.Money{Cents: 90000}, Description: "Salary"},
		// Invalid row.
		{Date: day(9), Amount: core.Money{Cents: 0}, Description: "zero"},
	}

	report, err := f.rec.Reconcile(context.Background(), rows)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Duplicates != 1 || report.Conflicts != 1 || report.Inserted != 2 || report.Rejected != 1 {
		t.Fatalf("report = %+v", report)
	}

	if report.Results[0].Status != StatusDuplicate {
		t.Errorf("row 0 = %v, want duplicate", report.Results[0].Status)
	}
	if report.Results[1].Status != StatusConflict || len(report.Results[1].Matches) != 1 {
		t.Errorf("row 1 = %+v, want conflict with one match", report.Results[1])
	}
	if report.Results[2].Status != StatusInserted {
		t.Errorf("row 2 = %v, want inserted", report.Results[2].Status)
	}

	lunch, _, err := f.store.Get(report.Results[2].TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if lunch.CategoryID != f.food.ID {
		t.Error("category hint not resolved")
	}
	if lunch.Amount.Cents != -1500 {
		t.Errorf("lunch amount = %d, want -1500", lunch.Amount.Cents)
	}
	if lunch.Source != core.SourceImport {
		t.Errorf("source = %v, want import", lunch.Source)
	}

	salary, _, err := f.store.Get(report.Results[3].TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if salary.CategoryID != f.cats.Uncategorized(core.KindIncome) {
		t.Error("hintless income row not in uncategorized")
	}
}

func TestReconcileTwiceInsertsNothing(t *testing.T) {
	f := newFixture(t)
	rows := []core.ParsedRow{
		{Date: day(1), Amount: core.Money{Cents: -2000}, Description: "Groceries"},
		{Date: day(2), Amount: core.Money{Cents: -3500}, Description: "Fuel"},
	}

	first, err := f.rec.Reconcile(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if first.Inserted != 2 {
		t.Fatalf("first run inserted %d, want 2", first.Inserted)
	}

	second, err := f.rec.Reconcile(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if second.Inserted != 0 || second.Duplicates != 2 {
		t.Errorf("second run = %+v, want all duplicates", second)
	}
	if len(f.store.List(ledger.Filter{})) != 2 {
		t.Errorf("store holds %d transactions, want 2", len(f.store.List(ledger.Filter{})))
	}
}

func TestConflictOutsideTolerance(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Post(core.Transaction{
		Amount:     core.Money{Cents: 4200},
		Posted:     day(1),
		CategoryID: f.food.ID,
		Memo:       "Coffee Shop",
		Source:     core.SourceManual,
	}); err != nil {
		t.Fatal(err)
	}

	// Same amount, different description, five days away with a
	// three-day tolerance: plain insert, not a conflict.
	report, err := f.rec.Reconcile(context.Background(), []core.ParsedRow{
		{Date: day(6), Amount: core.Money{Cents: -4200}, Description: "Other Vendor"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Inserted != 1 || report.Conflicts != 0 {
		t.Errorf("report = %+v, want one insert", report)
	}
}

func TestAcceptResolvesConflict(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Post(core.Transaction{
		Amount:     core.Money{Cents: 4200},
		Posted:     day(5),
		CategoryID: f.food.ID,
		Memo:       "Coffee Shop",
		Source:     core.SourceManual,
	}); err != nil {
		t.Fatal(err)
	}

	row := core.ParsedRow{Date: day(6), Amount: core.Money{Cents: -4200}, Description: "Bakery"}
	report, err := f.rec.Reconcile(context.Background(), []core.ParsedRow{row})
	if err != nil {
		t.Fatal(err)
	}
	if report.Conflicts != 1 {
		t.Fatalf("report = %+v, want one conflict", report)
	}

	id, err := f.rec.Accept(row)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	txn, _, err := f.store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Amount.Cents != -4200 {
		t.Errorf("accepted amount = %d, want -4200", txn.Amount.Cents)
	}

	// Accepting the same row again is a duplicate, not a second insert.
	if _, err := f.rec.Accept(row); err == nil {
		t.Error("second accept succeeded, want rejection")
	}
}

func TestReconcileContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.rec.Reconcile(ctx, []core.ParsedRow{
		{Date: day(1), Amount: core.Money{Cents: -1000}, Description: "row"},
	})
	if err == nil {
		t.Error("cancelled reconcile returned nil error")
	}
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"date,amount,description,category",
		"2025-06-01,-20.00,Groceries,Food",
		"02/06/2025,\"-3,50\",Espresso,",
		"2025-06-03,1500.00,Salary",
		"not-a-date,5.00,bad row",
		"2025-06-04,zero,bad amount",
	}, "\n")

	rows, errs := ParseCSV(strings.NewReader(input))
	if len(rows) != 3 {
		t.Fatalf("parsed %d rows, want 3 (errors: %v)", len(rows), errs)
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}

	if rows[0].Amount.Cents != -2000 || rows[0].CategoryHint != "Food" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Amount.Cents != -350 {
		t.Errorf("row 1 amount = %d, want -350", rows[1].Amount.Cents)
	}
	if rows[1].Date.Day() != 2 || rows[1].Date.Month() != time.June {
		t.Errorf("row 1 date = %v", rows[1].Date)
	}
	if rows[2].Amount.Cents != 150000 || rows[2].CategoryHint != "" {
		t.Errorf("row 2 = %+v", rows[2])
	}
}
