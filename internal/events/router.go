package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/herald/internal/messaging"
)

type routeFunc func(ctx context.Context, env Envelope) error

// Router dispatches inbound envelopes to the typed handler registered for
// their topic and type.
type Router struct {
	mu     sync.RWMutex
	routes map[string]map[string]routeFunc // topic -> type -> handler
	logger *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		routes: make(map[string]map[string]routeFunc),
		logger: logger.With("component", "event-router"),
	}
}

// On registers fn for event. A later registration for the same event
// replaces the earlier one.
func On[T any](r *Router, event Event[T], fn func(ctx context.Context, env Envelope, payload T) error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.routes[event.topic]
	if !ok {
		byType = make(map[string]routeFunc)
		r.routes[event.topic] = byType
	}
	byType[event.eventType] = func(ctx context.Context, env Envelope) error {
		payload, err := event.Unwrap(env)
		if err != nil {
			return err
		}
		return fn(ctx, env, payload)
	}
}

// Topics returns the topics that have at least one route, sorted.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Handle is a messaging.Handler. Messages that are not envelopes, or whose
// type has no route, are logged and dropped.
func (r *Router) Handle(ctx context.Context, msg messaging.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Raw, &env); err != nil || env.Type == "" {
		r.logger.Warn("Ignoring message without an event type", "topic", msg.Topic)
		return nil
	}

	r.mu.RLock()
	fn, ok := r.routes[msg.Topic][env.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("No handler for event type", "topic", msg.Topic, "type", env.Type)
		return nil
	}
	if err := fn(ctx, env); err != nil {
		return fmt.Errorf("handle %s on %s: %w", env.Type, msg.Topic, err)
	}
	return nil
}

// Subscribe attaches the router to every routed topic on sub.
func (r *Router) Subscribe(ctx context.Context, sub *messaging.Subscriber) error {
	for _, topic := range r.Topics() {
		if err := sub.Subscribe(ctx, topic, r.Handle); err != nil {
			return err
		}
	}
	return nil
}
