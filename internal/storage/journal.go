package storage

import (
	"context"
	"log/slog"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/category"
	"bilancio/internal/goal"
	"bilancio/internal/ledger"
	"bilancio/internal/recurrence"
)

// Journaler flushes the engines' durable state to the repository on an
// interval. Ledger records are appended incrementally past a sequence
// watermark; definitions (categories, templates, budgets, goals) are
// idempotent upserts. Threshold and milestone marks do not flow through
// here: they are persisted synchronously via engine hooks so
// at-most-once survives a crash between ticks.
type Journaler struct {
	repo    *SQLiteRepository
	cats    *category.Graph
	store   *ledger.Store
	rec     *recurrence.Engine
	budgets *budget.Engine
	goals   *goal.Tracker

	lastSeq int64
	log     *slog.Logger
}

// NewJournaler creates a journaler starting past the given sequence,
// typically the highest sequence loaded from the repository.
func NewJournaler(repo *SQLiteRepository, cats *category.Graph, store *ledger.Store,
	rec *recurrence.Engine, budgets *budget.Engine, goals *goal.Tracker, lastSeq int64) *Journaler {
	return &Journaler{
		repo:    repo,
		cats:    cats,
		store:   store,
		rec:     rec,
		budgets: budgets,
		goals:   goals,
		lastSeq: lastSeq,
		log:     slog.With("component", "storage"),
	}
}

// Flush writes everything new or changed since the last flush.
func (j *Journaler) Flush(ctx context.Context) error {
	for _, cat := range j.cats.List() {
		if err := j.repo.SaveCategory(ctx, cat); err != nil {
			return err
		}
	}

	for _, rec := range j.store.RecordsSince(j.lastSeq) {
		if err := j.repo.AppendRecord(ctx, rec); err != nil {
			return err
		}
		j.lastSeq = rec.Seq
	}

	for _, tpl := range j.rec.List() {
		if err := j.repo.SaveTemplate(ctx, tpl); err != nil {
			return err
		}
	}
	for _, b := range j.budgets.List() {
		if err := j.repo.SaveBudget(ctx, b); err != nil {
			return err
		}
	}
	for _, g := range j.goals.List() {
		if err := j.repo.SaveGoal(ctx, g); err != nil {
			return err
		}
		for _, c := range j.goals.Contributions(g.ID) {
			if err := j.repo.SaveContribution(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run flushes on the interval until the context ends, then performs a
// final flush so shutdown loses nothing.
func (j *Journaler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := j.Flush(flushCtx); err != nil {
				j.log.Error("final flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := j.Flush(ctx); err != nil {
				j.log.Error("journal flush failed", "error", err)
			}
		}
	}
}
