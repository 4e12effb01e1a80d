// recurring-worker drives materialization and budget evaluation over
// the HTTP API from outside the server process. Deployments that scale
// the API horizontally run one of these instead of relying on each
// replica's in-process scheduler.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bilancio/internal/config"

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

	logger.Info("Starting recurring-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurring processor configured",
		"interval", cfg.MaterializeInterval,
		"server_url", cfg.ServerURL)

	// Setup periodic processing ticker
	ticker := time.NewTicker(cfg.MaterializeInterval)
	defer ticker.Stop()

	// Run initial processing on startup
	logger.Info("Running initial materialization pass...")
	runPass(ctx, client, cfg.ServerURL)

	// Start periodic processing
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runPass(ctx, client, cfg.ServerURL)
			}
		}
	}()

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
	logger.Info("Recurring-worker shutdown complete")
}

// runPass posts one materialize-then-evaluate round trip. Failures are
// logged and retried on the next tick.
func runPass(ctx context.Context, client *http.Client, serverURL string) {
	if err := post(ctx, client, serverURL+"/api/materialize"); err != nil {
		slog.Error("Materialization pass failed", "error", err)
		return
	}
	if err := post(ctx, client, serverURL+"/api/evaluate"); err != nil {
		slog.Error("Budget evaluation pass failed", "error", err)
		return
	}
	slog.Info("Processing pass complete")
}

func post(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	return nil
}
