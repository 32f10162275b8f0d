package pubsub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// payloadPreviewLen is how much of a payload is attached to spans.
const payloadPreviewLen = 100

// TracingBroker wraps a Broker with OpenTelemetry spans for publish,
// delivery and subscriber-count queries.
type TracingBroker struct {
	next   Broker
	tracer trace.Tracer
}

var _ Broker = (*TracingBroker)(nil)

// NewTracingBroker wraps next with tracing.
func NewTracingBroker(next Broker, tracer trace.Tracer) *TracingBroker {
	return &TracingBroker{next: next, tracer: tracer}
}

// Unwrap returns the wrapped broker.
func (t *TracingBroker) Unwrap() Broker {
	return t.next
}

func preview(payload string) string {
	if len(payload) > payloadPreviewLen {
		return payload[:payloadPreviewLen] + "..."
	}
	return payload
}

// Publish wraps the publish operation with a span.
func (t *TracingBroker) Publish(ctx context.Context, topic, payload string) error {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("pubsub.publish.%s", topic),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.destination", topic),
			attribute.Int("messaging.message_payload_size_bytes", len(payload)),
			attribute.String("messaging.message_payload_preview", preview(payload)),
		),
	)
	defer span.End()

	err := t.next.Publish(ctx, topic, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Subscribe wraps every delivery to onMessage with a span.
func (t *TracingBroker) Subscribe(ctx context.Context, topic string, onMessage MessageHandler) (Subscription, error) {
	traced := func(ctx context.Context, payload string) {
		if ctx == nil {
			ctx = context.Background()
		}
		spanCtx, span := t.tracer.Start(ctx, fmt.Sprintf("pubsub.process.%s", topic),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.operation", "process"),
				attribute.String("messaging.destination", topic),
				attribute.Int("messaging.message_payload_size_bytes", len(payload)),
			),
		)
		defer span.End()
		onMessage(spanCtx, payload)
	}
	return t.next.Subscribe(ctx, topic, traced)
}

// SubscriberCount wraps the count query with a span.
func (t *TracingBroker) SubscriberCount(ctx context.Context, topic string) (int64, error) {
	ctx, span := t.tracer.Start(ctx, "pubsub.numsub",
		trace.WithAttributes(attribute.String("messaging.destination", topic)),
	)
	defer span.End()

	n, err := t.next.SubscriberCount(ctx, topic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int64("messaging.subscriber_count", n))
	return n, nil
}

// Close closes the underlying broker
func (t *TracingBroker) Close() error {
	return t.next.Close()
}
