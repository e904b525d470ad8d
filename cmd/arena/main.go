package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pnl-arena/internal/app"
	"pnl-arena/internal/config"
	"pnl-arena/internal/logger"
	"pnl-arena/internal/scheduler"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize arena", zap.Error(err))
	}
	defer a.Close()

	runner := scheduler.New(ctx, log)
	_, err = runner.Add("complete-expired-battles", cfg.Battle.PollSpec, func(ctx context.Context) error {
		_, err := a.Engine.CompleteExpired(ctx)
		return err
	})
	if err != nil {
		log.Fatal("Failed to schedule battle completion", zap.Error(err))
	}

	// Settle anything that expired while the worker was down.
	if _, err := a.Engine.CompleteExpired(ctx); err != nil {
		log.Warn("Initial battle sweep failed", zap.Error(err))
	}

	runner.Start()
	log.Info("Battle worker running", zap.String("poll_spec", cfg.Battle.PollSpec))

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")
	runner.Stop()
	log.Info("Battle worker has been shut down.")
}
