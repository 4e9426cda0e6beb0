package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bankledger/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		log.Fatalf("Bootstrap error: %v", err)
	}
	defer cleanup()

	slog.Info("Ledger engine is running")
	if err := app.Run(ctx); err != nil {
		slog.Error("application stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	slog.Info("Ledger engine stopped")
}
