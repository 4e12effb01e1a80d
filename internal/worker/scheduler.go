package worker

import (
	"context"
	"log/slog"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/recurrence"
)

// Scheduler periodically materializes due recurring occurrences and
// re-evaluates active budgets so threshold alerts fire without waiting
// for API traffic.
type Scheduler struct {
	recurrence *recurrence.Engine
	budgets    *budget.Engine
	clock      func() time.Time
	log        *slog.Logger
}

func NewScheduler(rec *recurrence.Engine, budgets *budget.Engine) *Scheduler {
	return &Scheduler{
		recurrence: rec,
		budgets:    budgets,
		clock:      time.Now,
		log:        slog.With("component", "scheduler"),
	}
}

// Tick runs one materialize-then-evaluate pass at the given instant.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	posted, err := s.recurrence.MaterializeAll(ctx, now)
	if err != nil {
		s.log.Error("materialization pass failed", "error", err)
	} else if posted > 0 {
		s.log.Info("materialized recurring occurrences", "posted", posted)
	}

	states, err := s.budgets.EvaluateAll(now)
	if err != nil {
		s.log.Error("budget evaluation pass failed", "error", err)
		return
	}
	for _, state := range states {
		if state.Status != "ok" {
			s.log.Info("budget over warning level",
				"budget_id", state.BudgetID,
				"status", state.Status,
				"percentage", state.Percentage)
		}
	}
}

// Run ticks immediately, then on every interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.Tick(ctx, s.clock())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}
