package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/herald/internal/metrics"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/nfrund/herald/internal/topicmgr"
)

// Subscriber holds at most one handler per topic and dispatches decoded
// messages to it. Each instance owns its own subscriptions; many instances
// may share one registry and broker.
type Subscriber struct {
	registry *topicmgr.Registry
	broker   pubsub.Broker
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*entry
}

// entry is a topic slot. sub is nil while the broker subscription is being
// opened; the slot itself already blocks duplicate Subscribe calls.
type entry struct {
	handler Handler
	sub     pubsub.Subscription
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberMetrics records delivery counters on m.
func WithSubscriberMetrics(m *metrics.Metrics) SubscriberOption {
	return func(s *Subscriber) {
		s.metrics = m
	}
}

// WithSubscriberLogger overrides the default logger.
func WithSubscriberLogger(l *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSubscriber creates a Subscriber over a shared registry and broker.
func NewSubscriber(registry *topicmgr.Registry, broker pubsub.Broker, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		registry: registry,
		broker:   broker,
		logger:   slog.Default().With("component", "subscriber"),
		subs:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe installs handler for topic. It fails with a
// *DuplicateSubscriptionError when this Subscriber already has a handler for
// the topic, and with ErrSubscriptionCanceled when Unsubscribe for the topic
// ran before the broker subscription finished opening.
func (s *Subscriber) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if handler == nil {
		return errors.New("subscribe: nil handler")
	}
	name, err := topicmgr.Normalize(topic)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.subs[name]; exists {
		s.mu.Unlock()
		return &DuplicateSubscriptionError{Topic: name}
	}
	slot := &entry{handler: handler}
	s.subs[name] = slot
	s.mu.Unlock()

	if err := s.registry.Register(name); err != nil {
		s.release(name, slot)
		return err
	}

	sub, err := s.broker.Subscribe(ctx, name, s.dispatcher(name, handler))
	if err != nil {
		s.release(name, slot)
		s.logger.Error("Error subscribing to topic", "topic", name, "error", err)
		return &SubscribeError{Topic: name, Err: err}
	}

	s.mu.Lock()
	current, stillOurs := s.subs[name]
	if stillOurs && current == slot {
		slot.sub = sub
		s.mu.Unlock()
		s.logger.Info("Subscribed to topic", "topic", name)
		return nil
	}
	s.mu.Unlock()

	// Unsubscribe ran while the broker subscription was opening.
	if err := sub.Unsubscribe(ctx); err != nil {
		s.logger.Warn("Failed to release abandoned subscription", "topic", name, "error", err)
	}
	return fmt.Errorf("subscribe %s: %w", name, ErrSubscriptionCanceled)
}

func (s *Subscriber) release(name string, slot *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[name] == slot {
		delete(s.subs, name)
	}
}

// Unsubscribe removes the handler for topic and closes its broker
// subscription. Unsubscribing from a topic without a handler is a no-op.
func (s *Subscriber) Unsubscribe(ctx context.Context, topic string) error {
	name := topic
	if n, err := topicmgr.Normalize(topic); err == nil {
		name = n
	}

	s.mu.Lock()
	slot, exists := s.subs[name]
	if exists {
		delete(s.subs, name)
	}
	s.mu.Unlock()

	if !exists || slot.sub == nil {
		return nil
	}
	if err := slot.sub.Unsubscribe(ctx); err != nil {
		s.logger.Error("Error unsubscribing from topic", "topic", name, "error", err)
		return fmt.Errorf("unsubscribe %s: %w", name, err)
	}
	s.logger.Info("Unsubscribed from topic", "topic", name)
	return nil
}

// Topics returns the topics this Subscriber has handlers for, sorted.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.subs))
	for name := range s.subs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close unsubscribes from every topic. Errors are joined.
func (s *Subscriber) Close(ctx context.Context) error {
	var errs []error
	for _, name := range s.Topics() {
		if err := s.Unsubscribe(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatcher adapts a Handler to the broker's raw text callback. Every
// delivery refreshes the topic; decode failures, handler errors and handler
// panics are logged per message and never end the subscription.
func (s *Subscriber) dispatcher(topic string, handler Handler) pubsub.MessageHandler {
	scope := metrics.Scope(topicmgr.IsCore(topic))

	return func(ctx context.Context, payload string) {
		defer s.registry.Touch(topic)
		s.metrics.Received(scope)

		data, err := decode(payload)
		if err != nil {
			s.metrics.DecodeFailed(scope)
			derr := &DeserializationError{Topic: topic, Payload: payload, Err: err}
			s.logger.Error("Error processing message", "topic", topic, "error", derr)
			return
		}

		msg := Message{
			Topic:      topic,
			Raw:        json.RawMessage(payload),
			Data:       data,
			ReceivedAt: s.registry.Now(),
		}

		defer func() {
			if r := recover(); r != nil {
				s.metrics.HandlerFailed(scope)
				s.logger.Error("Message handler panicked", "topic", topic, "panic", r)
			}
		}()
		if err := handler(ctx, msg); err != nil {
			s.metrics.HandlerFailed(scope)
			s.logger.Error("Message handler failed", "topic", topic, "error", err)
			return
		}
		s.logger.Debug("Received message", "topic", topic)
	}
}
