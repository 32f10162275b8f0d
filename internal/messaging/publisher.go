package messaging

import (
	"context"
	"log/slog"

	"github.com/nfrund/herald/internal/metrics"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/nfrund/herald/internal/topicmgr"
)

// PublishResult echoes what was published.
type PublishResult struct {
	Topic   string `json:"topic"`
	Message any    `json:"message"`
}

// Publisher sends messages through the broker and keeps the topic registry
// current on every publish.
type Publisher struct {
	registry *topicmgr.Registry
	broker   pubsub.Broker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherMetrics records publish counters on m.
func WithPublisherMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithPublisherLogger overrides the default logger.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher creates a Publisher over a shared registry and broker.
func NewPublisher(registry *topicmgr.Registry, broker pubsub.Broker, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		registry: registry,
		broker:   broker,
		logger:   slog.Default().With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish serializes message as JSON and sends it to topic. The topic is
// registered and marked used before the broker is called, so a concurrent
// cleanup scan never sees a topic that is being published to as idle.
func (p *Publisher) Publish(ctx context.Context, topic string, message any) (PublishResult, error) {
	name, err := topicmgr.Normalize(topic)
	if err != nil {
		return PublishResult{}, &PublishError{Topic: topic, Op: "validate", Err: err}
	}
	scope := metrics.Scope(topicmgr.IsCore(name))

	payload, err := encode(message)
	if err != nil {
		p.metrics.PublishFailed(scope)
		return PublishResult{}, &PublishError{Topic: name, Op: "encode", Err: err}
	}

	if err := p.registry.Register(name); err != nil {
		return PublishResult{}, &PublishError{Topic: name, Op: "validate", Err: err}
	}
	p.registry.Touch(name)
	p.metrics.SetDynamicTopics(len(p.registry.Snapshot()))

	if err := p.broker.Publish(ctx, name, payload); err != nil {
		p.metrics.PublishFailed(scope)
		p.logger.Error("Error publishing message", "topic", name, "error", err)
		return PublishResult{}, &PublishError{Topic: name, Op: "publish", Err: err}
	}

	p.metrics.Published(scope)
	p.logger.Debug("Published message", "topic", name, "bytes", len(payload))
	return PublishResult{Topic: name, Message: message}, nil
}

// ActiveTopics lists the core and dynamic topics.
func (p *Publisher) ActiveTopics() topicmgr.ActiveTopics {
	return p.registry.List()
}

// TopicStatus reports on a topic without counting as a use of it.
func (p *Publisher) TopicStatus(topic string) topicmgr.TopicStatus {
	return p.registry.Status(topic)
}
