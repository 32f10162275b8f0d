// Package events defines typed message envelopes for the core topics.
//
// Every event travels as an Envelope whose Type tag selects the payload
// shape. Topics the application does not interpret are still free to carry
// arbitrary JSON through the messaging package directly.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/herald/internal/messaging"
)

// Envelope is the wire form of a typed event.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Event[T] binds a payload type to a topic and a type tag.
type Event[T any] struct {
	topic     string
	eventType string
}

// NewEvent defines a typed event on topic.
func NewEvent[T any](topic, eventType string) Event[T] {
	return Event[T]{topic: topic, eventType: eventType}
}

// Topic returns the topic the event is published on.
func (e Event[T]) Topic() string { return e.topic }

// Type returns the envelope type tag.
func (e Event[T]) Type() string { return e.eventType }

// OnTopic returns the same event bound to another topic, such as a dynamic
// alerts channel.
func (e Event[T]) OnTopic(topic string) Event[T] {
	return Event[T]{topic: topic, eventType: e.eventType}
}

// Wrap builds an envelope for payload.
func (e Event[T]) Wrap(payload T) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", e.eventType, err)
	}
	return Envelope{
		ID:         uuid.New(),
		Type:       e.eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// Unwrap decodes the payload of env. It fails when env carries another type.
func (e Event[T]) Unwrap(env Envelope) (T, error) {
	var payload T
	if env.Type != e.eventType {
		return payload, fmt.Errorf("envelope type %q is not %q", env.Type, e.eventType)
	}
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", e.eventType, err)
	}
	return payload, nil
}

// Publisher is the part of messaging.Publisher typed events need.
type Publisher interface {
	Publish(ctx context.Context, topic string, message any) (messaging.PublishResult, error)
}

// Publish sends a typed event. The compiler ensures payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) (Envelope, error) {
	env, err := event.Wrap(payload)
	if err != nil {
		return Envelope{}, err
	}
	if _, err := p.Publish(ctx, event.topic, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
