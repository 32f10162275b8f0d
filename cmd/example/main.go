// Command example publishes a few events through the pub/sub layer and
// prints the active topics while the background processor handles them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nfrund/herald/internal/app"
	"github.com/nfrund/herald/internal/config"
	"github.com/nfrund/herald/internal/events"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Example failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Processor.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Connected to", cfg.BrokerDriver, "broker")

	fmt.Println("\nExample 1: core topic")
	if _, err := events.Publish(ctx, a.Publisher, events.Email, events.EmailPayload{
		To:      "user@example.com",
		Subject: "Welcome",
		Content: "Welcome to our platform!",
	}); err != nil {
		return err
	}

	fmt.Println("\nExample 2: dynamic topic")
	if _, err := events.Publish(ctx, a.Publisher, events.SystemWarning.OnTopic("custom_alerts"), events.SystemWarningPayload{
		Level:   "warning",
		Message: "High CPU usage detected",
	}); err != nil {
		return err
	}

	fmt.Println("\nExample 3: inventory update")
	if _, err := events.Publish(ctx, a.Publisher, events.StockUpdate, events.StockUpdatePayload{
		ProductID: "PROD123",
		Quantity:  50,
		Warehouse: "WH001",
	}); err != nil {
		return err
	}

	fmt.Println("\nActive topics:")
	out, err := json.MarshalIndent(a.Publisher.ActiveTopics(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	fmt.Println("\nWatching for messages... (Press Ctrl+C to exit)")
	<-ctx.Done()
	return nil
}
