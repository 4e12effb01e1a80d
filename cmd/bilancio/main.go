package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/budget"
	"bilancio/internal/category"
	"bilancio/internal/config"
	"bilancio/internal/events"
	"bilancio/internal/goal"
	apphttp "bilancio/internal/http"
	"bilancio/internal/importer"
	"bilancio/internal/ledger"
	"bilancio/internal/recurrence"
	"bilancio/internal/storage"
	"bilancio/internal/worker"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bilancio server")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Build the in-memory engines
	bus := events.NewBus()
	cats := category.NewGraph()
	store := ledger.NewStore(cats)
	lookahead := time.Duration(cfg.RecurrenceLookaheadDays) * 24 * time.Hour
	rec := recurrence.NewEngine(store, bus, lookahead)
	budgets := budget.NewEngine(store, cats, bus)
	budgets.SetDefaultZone(cfg.BudgetZone)
	goals := goal.NewTracker(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	// Initialize SQLite persistence unless running memory-only
	var repo *storage.SQLiteRepository
	if cfg.DataBackend == "sqlite" {
		var err error
		repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()

		snap, err := repo.LoadAll(ctx)
		if err != nil {
			logger.Error("Failed to load durable state", "error", err)
			os.Exit(1)
		}
		lastSeq, err := restore(snap, cats, store, rec, budgets, goals)
		if err != nil {
			logger.Error("Failed to restore engine state", "error", err)
			os.Exit(1)
		}
		logger.Info("Durable state restored",
			"categories", len(snap.Categories),
			"records", len(snap.Records),
			"templates", len(snap.Templates),
			"budgets", len(snap.Budgets),
			"goals", len(snap.Goals))

		// Threshold and milestone marks persist synchronously so a
		// crash between journal flushes cannot re-fire an alert.
		budgets.SetFireHook(func(m budget.FiredMark) {
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer saveCancel()
			if err := repo.SaveFiredMark(saveCtx, m); err != nil {
				logger.Error("Failed to persist threshold mark", "error", err, "budget_id", m.BudgetID)
			}
		})
		goals.SetFireHook(func(m goal.MilestoneMark) {
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer saveCancel()
			if err := repo.SaveMilestone(saveCtx, m); err != nil {
				logger.Error("Failed to persist milestone mark", "error", err, "goal_id", m.GoalID)
			}
		})

		journaler := storage.NewJournaler(repo, cats, store, rec, budgets, goals, lastSeq)
		group.Go(func() error {
			journaler.Run(groupCtx, cfg.JournalInterval)
			return nil
		})
	} else {
		logger.Info("Memory backend selected - state will not survive restarts")
	}

	// Seed the default taxonomy on first start; no-op once user
	// categories exist
	if err := category.SeedDefaults(cats); err != nil {
		logger.Error("Failed to seed default categories", "error", err)
		os.Exit(1)
	}

	// Initialize AMQP relay for outward notifications (optional)
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			defer amqpClient.Close()
			relay := worker.NewRelay(bus.Subscribe(cfg.BusQueueBound), amqpClient)
			group.Go(func() error {
				if err := relay.Run(groupCtx); err != nil && err != context.Canceled {
					return err
				}
				return nil
			})
			logger.Info("AMQP relay started", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - events stay in-process")
	}

	// In-process scheduler keeps recurrences and budgets current even
	// without API traffic
	scheduler := worker.NewScheduler(rec, budgets)
	group.Go(func() error {
		scheduler.Run(groupCtx, cfg.MaterializeInterval)
		return nil
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Cats:       cats,
		Store:      store,
		Recurrence: rec,
		Budgets:    budgets,
		Goals:      goals,
		Importer:   importer.NewReconciler(store, cats, cfg.ImportToleranceDays),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		bus.Close()
		cancel()
	}()

	logger.Info("Starting HTTP API", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	if err := group.Wait(); err != nil {
		logger.Error("Background worker error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}

// restore replays a snapshot into the engines in dependency order and
// returns the ledger journal watermark.
func restore(snap *storage.Snapshot, cats *category.Graph, store *ledger.Store,
	rec *recurrence.Engine, budgets *budget.Engine, goals *goal.Tracker) (int64, error) {
	for _, cat := range snap.Categories {
		if err := cats.Restore(cat); err != nil {
			return 0, err
		}
	}
	if err := store.LoadHistory(snap.Records); err != nil {
		return 0, err
	}
	var lastSeq int64
	if n := len(snap.Records); n > 0 {
		lastSeq = snap.Records[n-1].Seq
	}
	for _, tpl := range snap.Templates {
		rec.Restore(tpl)
	}
	for _, b := range snap.Budgets {
		budgets.Restore(b)
	}
	for _, m := range snap.FiredMarks {
		budgets.RestoreFired(m)
	}
	for _, g := range snap.Goals {
		goals.Restore(g)
	}
	for _, c := range snap.Contributions {
		goals.RestoreContribution(c)
	}
	for _, m := range snap.Milestones {
		goals.RestoreMilestone(m)
	}
	return lastSeq, nil
}
