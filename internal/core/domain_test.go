package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validTransaction() Transaction {
	return Transaction{
		ID:         uuid.New(),
		Amount:     Money{Cents: -1500},
		Posted:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		CategoryID: uuid.New(),
		Memo:       "groceries",
		Source:     SourceManual,
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{name: "valid", mutate: func(*Transaction) {}},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = Money{} }, wantErr: ErrInvalidAmount},
		{name: "zero date", mutate: func(tx *Transaction) { tx.Posted = time.Time{} }, wantErr: ErrInvalidDate},
		{name: "nil category", mutate: func(tx *Transaction) { tx.CategoryID = uuid.Nil }, wantErr: ErrUnknownCategory},
		{name: "no memo", mutate: func(tx *Transaction) { tx.Memo = "" }},
		{name: "memo too long", mutate: func(tx *Transaction) { tx.Memo = strings.Repeat("x", 201) }, wantErr: ErrDescriptionTooLong},
		{name: "unknown source", mutate: func(tx *Transaction) { tx.Source = "telepathy" }, wantErr: ErrInvalidSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsedRowInferredKind(t *testing.T) {
	if got := (ParsedRow{Amount: Money{Cents: -100}}).InferredKind(); got != KindExpense {
		t.Errorf("negative amount inferred as %v, want expense", got)
	}
	if got := (ParsedRow{Amount: Money{Cents: 100}}).InferredKind(); got != KindIncome {
		t.Errorf("positive amount inferred as %v, want income", got)
	}
}

func TestGoalValidate(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		goal    Goal
		wantErr error
	}{
		{
			name: "valid",
			goal: Goal{Name: "vacation", Target: Money{Cents: 100000}, CreatedAt: created},
		},
		{
			name:    "empty name",
			goal:    Goal{Name: " ", Target: Money{Cents: 100000}},
			wantErr: ErrEmptyDescription,
		},
		{
			name:    "non-positive target",
			goal:    Goal{Name: "vacation", Target: Money{Cents: -1}},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "sweep out of range",
			goal:    Goal{Name: "vacation", Target: Money{Cents: 100}, SweepPercent: 101},
			wantErr: ErrInvalidSweep,
		},
		{
			name: "target date before creation",
			goal: Goal{Name: "vacation", Target: Money{Cents: 100},
				CreatedAt: created, TargetDate: created.AddDate(0, -1, 0)},
			wantErr: ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.goal.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	valid := Budget{
		CategoryID: uuid.New(),
		Limit:      Money{Cents: 50000},
		Thresholds: []int{80, 100},
		Period:     PeriodSpec{Kind: PeriodMonthly},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid budget rejected: %v", err)
	}

	t.Run("thresholds must increase", func(t *testing.T) {
		b := valid
		b.Thresholds = []int{80, 80}
		if !errors.Is(b.Validate(), ErrInvalidThresholds) {
			t.Error("equal thresholds accepted")
		}
		b.Thresholds = []int{100, 80}
		if !errors.Is(b.Validate(), ErrInvalidThresholds) {
			t.Error("decreasing thresholds accepted")
		}
	})

	t.Run("custom period needs a range", func(t *testing.T) {
		b := valid
		b.Period = PeriodSpec{Kind: PeriodCustom}
		if !errors.Is(b.Validate(), ErrInvalidPeriod) {
			t.Error("custom period without range accepted")
		}
	})

	t.Run("bad zone rejected", func(t *testing.T) {
		b := valid
		b.Period = PeriodSpec{Kind: PeriodMonthly, Zone: "Mars/Olympus"}
		if !errors.Is(b.Validate(), ErrInvalidPeriod) {
			t.Error("unknown zone accepted")
		}
	})
}
