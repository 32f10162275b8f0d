package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingBroker(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(ctx) }()

	broker := NewTracingBroker(NewMemoryBroker(Events{}), tp.Tracer("test"))
	defer broker.Close()

	received := make(chan struct{}, 1)
	_, err := broker.Subscribe(ctx, "order", func(context.Context, string) {
		received <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "order", `{"orderId":"A1"}`))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	_, err = broker.SubscriberCount(ctx, "order")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "pubsub.publish.order")
	assert.Contains(t, names, "pubsub.process.order")
	assert.Contains(t, names, "pubsub.numsub")
}

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, TracingConfig{Enabled: false})
		require.NoError(t, err)
		require.NotNil(t, tracer)
		require.NotNil(t, cleanup)

		// Should be a no-op tracer
		_, span := tracer.Start(ctx, "test")
		span.End()
		cleanup()
	})

	t.Run("enabled tracing with unreachable collector", func(t *testing.T) {
		config := TracingConfig{
			Enabled:     true,
			ServiceName: "test-service",
			ZipkinURL:   "http://invalid-url:9411/api/v2/spans",
			SampleRatio: 0.5,
		}
		tracer, cleanup, err := SetupOTel(ctx, config)
		require.NoError(t, err)
		require.NotNil(t, tracer)
		cleanup()
	})
}

func TestTracingConfig_Validate(t *testing.T) {
	assert.NoError(t, TracingConfig{}.Validate(), "disabled config is always valid")
	assert.NoError(t, DefaultTracingConfig().Validate())

	enabled := DefaultTracingConfig()
	enabled.Enabled = true
	assert.NoError(t, enabled.Validate())

	noURL := enabled
	noURL.ZipkinURL = ""
	assert.Error(t, noURL.Validate())

	badRatio := enabled
	badRatio.SampleRatio = 1.5
	assert.Error(t, badRatio.Validate())

	_, _, err := SetupOTel(context.Background(), badRatio)
	assert.Error(t, err)
}
