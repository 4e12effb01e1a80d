// bilancio-worker consumes engine events from the broker and turns
// them into operator-facing notifications. It is the durable side of
// the alert pipeline: the server relays events fire-and-forget, this
// worker acks them only after handling.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/events"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bilancio-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notification worker")
		os.Exit(1)
	}

	// Initialize AMQP client for consuming messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := amqpClient.ConsumeWithReconnect(ctx, handleEvent); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()
	logger.Info("Consuming events", "queue", cfg.AMQPQueue)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}

// handleEvent dispatches one broker message. Returning an error nacks
// the message for redelivery; decode failures are handled upstream.
func handleEvent(msg *amqp.EventMessage) error {
	switch msg.RoutingKey {
	case events.KeyBudgetThreshold:
		var e events.BudgetThresholdCrossed
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		slog.Info("Budget threshold crossed",
			"budget_id", e.BudgetID,
			"threshold", e.Threshold,
			"percentage", e.Percentage,
			"period_start", e.PeriodStart)

	case events.KeyRecurringPosted:
		var e events.RecurringPosted
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		slog.Info("Recurring transaction posted",
			"transaction_id", e.TransactionID,
			"template_id", e.TemplateID,
			"posted", e.Posted)

	case events.KeyGoalMilestone:
		var e events.GoalMilestone
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		slog.Info("Goal milestone reached",
			"goal_id", e.GoalID,
			"milestone", e.Milestone)

	default:
		slog.Warn("Unknown routing key, dropping message",
			"routing_key", msg.RoutingKey,
			"identity", msg.Identity)
	}
	return nil
}
