package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/herald/internal/background"
	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/config"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/nfrund/herald/internal/server"
	"github.com/samber/do/v2"
)

// App is the assembled service.
type App struct {
	Injector *do.RootScope

	Config    *config.Config
	Logger    *slog.Logger
	Broker    pubsub.Broker
	Publisher *messaging.Publisher
	Cleanup   *cleanup.Scheduler
	Jobs      *jobs.Manager
	Processor *background.Processor
	Server    *server.Server

	tracing *Tracing
}

// New resolves every service from the container. A broker that cannot be
// reached fails here.
func New(cfg *config.Config) (*App, error) {
	injector := NewContainer(cfg)

	a := &App{Injector: injector, Config: cfg}
	var err error
	if a.Logger, err = do.Invoke[*slog.Logger](injector); err != nil {
		return nil, err
	}
	if a.tracing, err = do.Invoke[*Tracing](injector); err != nil {
		return nil, err
	}
	if a.Broker, err = do.Invoke[pubsub.Broker](injector); err != nil {
		a.tracing.Shutdown()
		return nil, err
	}
	if a.Publisher, err = do.Invoke[*messaging.Publisher](injector); err != nil {
		return nil, a.abort(err)
	}
	if a.Cleanup, err = do.Invoke[*cleanup.Scheduler](injector); err != nil {
		return nil, a.abort(err)
	}
	if a.Jobs, err = do.Invoke[*jobs.Manager](injector); err != nil {
		return nil, a.abort(err)
	}
	if a.Processor, err = do.Invoke[*background.Processor](injector); err != nil {
		return nil, a.abort(err)
	}
	if a.Server, err = do.Invoke[*server.Server](injector); err != nil {
		return nil, a.abort(err)
	}
	return a, nil
}

func (a *App) abort(err error) error {
	if cerr := a.Broker.Close(); cerr != nil {
		a.Logger.Warn("Failed to close broker", "error", cerr)
	}
	a.tracing.Shutdown()
	return err
}

// Start launches the background work and the HTTP server. The returned
// channel reports a server that stopped on its own.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	if err := a.Processor.Start(ctx); err != nil {
		return nil, err
	}
	if err := a.Cleanup.Start(); err != nil {
		return nil, fmt.Errorf("start cleanup: %w", err)
	}
	if a.Config.CronEnabled {
		a.Jobs.Start()
	} else {
		a.Logger.Info("Cron manager disabled")
	}
	return a.Server.Start(a.Config.Addr()), nil
}

// Shutdown stops the service in dependency order: HTTP, cron jobs, the
// cleanup scheduler, subscribers, the broker, then tracing. Every step runs
// even if an earlier one fails.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.Logger.Error("Shutdown step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("http", func() error { return a.Server.Shutdown(ctx) })
	step("jobs", func() error { return a.Jobs.Stop(ctx) })
	step("cleanup", func() error { return a.Cleanup.Stop(ctx) })
	step("subscribers", func() error { return a.Processor.Stop(ctx) })
	step("broker", a.Broker.Close)
	a.tracing.Shutdown()

	a.Logger.Info("Shutdown complete")
	return errors.Join(errs...)
}
