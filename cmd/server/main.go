package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nfrund/herald/internal/app"
	"github.com/nfrund/herald/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr, err := a.Start(ctx)
	if err != nil {
		a.Logger.Error("Failed to start", "error", err)
		shutdown(a)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		a.Logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			a.Logger.Error("HTTP server failed", "error", err)
		}
	}

	if !shutdown(a) {
		os.Exit(1)
	}
}

func shutdown(a *app.App) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(ctx) == nil
}
