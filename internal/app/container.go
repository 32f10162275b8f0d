package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nfrund/herald/internal/background"
	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/config"
	"github.com/nfrund/herald/internal/handlers"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/logging"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/metrics"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/nfrund/herald/internal/server"
	"github.com/nfrund/herald/internal/topicmgr"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported by the health endpoint. It is set at build time.
var Version = "dev"

// CleanupJobName is the maintenance job that runs topic cleanup.
const CleanupJobName = "cleanup-unused-topics"

// Tracing holds the broker tracer and its provider shutdown hook.
type Tracing struct {
	Tracer   trace.Tracer
	Shutdown func()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// NewContainer registers every service provider. Services are built lazily
// on first invoke.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, provideLogger)
	do.Provide(injector, func(do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
	do.Provide(injector, func(do.Injector) (*topicmgr.Registry, error) {
		return topicmgr.NewRegistry(), nil
	})
	do.Provide(injector, provideTracing)
	do.Provide(injector, provideBroker)
	do.Provide(injector, providePublisher)
	do.Provide(injector, provideScheduler)
	do.Provide(injector, provideJobs)
	do.Provide(injector, provideProcessor)
	do.Provide(injector, provideServer)

	return injector
}

func provideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logging.NewWithWriter(os.Stdout, cfg.LogFormat, cfg.LogLevel), nil
}

func provideTracing(i do.Injector) (*Tracing, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, shutdown, err := pubsub.SetupOTel(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return &Tracing{Tracer: tracer, Shutdown: shutdown}, nil
}

func provideBroker(i do.Injector) (pubsub.Broker, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i).With("component", "broker")
	tracing, err := do.Invoke[*Tracing](i)
	if err != nil {
		return nil, err
	}

	events := pubsub.Events{
		OnConnect: func() { logger.Debug("Broker connected", "driver", cfg.BrokerDriver) },
		OnError:   func(err error) { logger.Error("Broker connection error", "error", err) },
	}

	var broker pubsub.Broker
	switch cfg.BrokerDriver {
	case config.DriverMemory:
		broker = pubsub.NewMemoryBroker(events)
	default:
		rb, err := pubsub.NewRedisBroker(context.Background(), pubsub.RedisConfig{
			URL:         cfg.RedisURL,
			DialTimeout: 5 * time.Second,
		}, events)
		if err != nil {
			return nil, err
		}
		broker = rb
	}

	if cfg.Tracing.Enabled {
		broker = pubsub.NewTracingBroker(broker, tracing.Tracer)
	}
	logger.Info("Broker ready", "driver", cfg.BrokerDriver, "tracing", cfg.Tracing.Enabled)
	return broker, nil
}

func providePublisher(i do.Injector) (*messaging.Publisher, error) {
	return messaging.NewPublisher(
		do.MustInvoke[*topicmgr.Registry](i),
		do.MustInvoke[pubsub.Broker](i),
		messaging.WithPublisherMetrics(do.MustInvoke[*metrics.Metrics](i)),
		messaging.WithPublisherLogger(do.MustInvoke[*slog.Logger](i).With("component", "publisher")),
	), nil
}

// newSubscriber builds a Subscriber facade. Each consumer gets its own so
// their topic sets stay independent.
func newSubscriber(i do.Injector, component string) *messaging.Subscriber {
	return messaging.NewSubscriber(
		do.MustInvoke[*topicmgr.Registry](i),
		do.MustInvoke[pubsub.Broker](i),
		messaging.WithSubscriberMetrics(do.MustInvoke[*metrics.Metrics](i)),
		messaging.WithSubscriberLogger(do.MustInvoke[*slog.Logger](i).With("component", component)),
	)
}

func provideScheduler(i do.Injector) (*cleanup.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return cleanup.NewScheduler(
		do.MustInvoke[*topicmgr.Registry](i),
		do.MustInvoke[pubsub.Broker](i),
		cleanup.Config{
			IdleThreshold: cfg.IdleThreshold,
			Interval:      cfg.SweepInterval,
			QueryTimeout:  cfg.SubscriberQueryTimeout,
		},
		cleanup.WithLogger(do.MustInvoke[*slog.Logger](i).With("component", "cleanup")),
		cleanup.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
	), nil
}

func provideJobs(i do.Injector) (*jobs.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i).With("component", "jobs")
	scheduler := do.MustInvoke[*cleanup.Scheduler](i)

	m := jobs.NewManager(
		jobs.WithLogger(logger),
		jobs.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
	)
	err := m.AddJob(CleanupJobName, cfg.CleanupSchedule, cleanupTask(scheduler),
		jobs.WithOnError(func(_ context.Context, name string, err error) {
			logger.Error("Maintenance job failed", "job", name, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// cleanupTask runs one cleanup pass. A pass already in progress counts as
// success; the running pass covers this slot.
func cleanupTask(s *cleanup.Scheduler) jobs.Task {
	return func(ctx context.Context) error {
		_, err := s.Run(ctx)
		if errors.Is(err, cleanup.ErrRunInProgress) {
			return nil
		}
		return err
	}
}

func provideProcessor(i do.Injector) (*background.Processor, error) {
	logger := do.MustInvoke[*slog.Logger](i).With("component", "background")
	return background.NewProcessor(
		newSubscriber(i, "background.subscriber"),
		background.WithLogger(logger),
		background.WithEmailSender(background.NewLogEmailSender(logger)),
		background.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
	), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	broker := do.MustInvoke[pubsub.Broker](i)

	var ping func(ctx context.Context) error
	if p, ok := unwrapBroker(broker).(pinger); ok {
		ping = p.Ping
	}

	return server.New(server.Dependencies{
		APIPrefix:   cfg.APIPrefix,
		Logger:      logger,
		Metrics:     do.MustInvoke[*metrics.Metrics](i),
		PublishRate: cfg.PublishRate,
		Topics: handlers.NewTopicsHandler(
			do.MustInvoke[*messaging.Publisher](i),
			do.MustInvoke[*cleanup.Scheduler](i),
		),
		Jobs:   handlers.NewJobsHandler(do.MustInvoke[*jobs.Manager](i)),
		Health: handlers.NewHealthHandler(Version, ping),
		Stream: handlers.NewStreamHandler(func() handlers.StreamSubscriber {
			return newSubscriber(i, "stream.subscriber")
		}, logger),
	}), nil
}

func unwrapBroker(b pubsub.Broker) pubsub.Broker {
	for {
		u, ok := b.(interface{ Unwrap() pubsub.Broker })
		if !ok {
			return b
		}
		b = u.Unwrap()
	}
}
