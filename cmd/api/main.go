package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pixwallet/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	slog.Info("pixwallet is running")
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application stopped with error", "error", err)
		os.Exit(1)
	}
}
