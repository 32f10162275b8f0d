package pubsub

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(Events{})
	defer broker.Close()

	received := make(chan string, 1)
	sub, err := broker.Subscribe(ctx, "promo_alerts", func(ctx context.Context, payload string) {
		received <- payload
	})
	require.NoError(t, err)
	assert.Equal(t, "promo_alerts", sub.Topic())

	require.NoError(t, broker.Publish(ctx, "promo_alerts", `{"sale":true}`))

	select {
	case payload := <-received:
		assert.Equal(t, `{"sale":true}`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBroker_SubscriberCount(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(Events{})
	defer broker.Close()

	noop := func(context.Context, string) {}

	count, err := broker.SubscriberCount(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	sub1, err := broker.Subscribe(ctx, "order", noop)
	require.NoError(t, err)
	sub2, err := broker.Subscribe(ctx, "order", noop)
	require.NoError(t, err)

	count, err = broker.SubscriberCount(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, sub1.Unsubscribe(ctx))
	// A second Unsubscribe on the same handle does nothing.
	require.NoError(t, sub1.Unsubscribe(ctx))

	count, _ = broker.SubscriberCount(ctx, "order")
	assert.Equal(t, int64(1), count)

	require.NoError(t, sub2.Unsubscribe(ctx))
	count, _ = broker.SubscriberCount(ctx, "order")
	assert.Equal(t, int64(0), count)
}

func TestMemoryBroker_FanOutToAllHandlers(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(Events{})
	defer broker.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		_, err := broker.Subscribe(ctx, "system", func(context.Context, string) { wg.Done() })
		require.NoError(t, err)
	}

	require.NoError(t, broker.Publish(ctx, "system", `{}`))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every handler received the message")
	}
}

func TestMemoryBroker_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(Events{})
	defer broker.Close()

	received := make(chan string, 2)
	_, err := broker.Subscribe(ctx, "inventory", func(ctx context.Context, payload string) {
		if payload == "boom" {
			panic("handler failure")
		}
		received <- payload
	})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "inventory", "boom"))
	require.NoError(t, broker.Publish(ctx, "inventory", "ok"))

	select {
	case payload := <-received:
		assert.Equal(t, "ok", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after a handler panic")
	}
}

func TestMemoryBroker_DeliversEveryMessageInAnyOrder(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(Events{})
	defer broker.Close()

	const n = 20
	received := make(chan string, n)
	_, err := broker.Subscribe(ctx, "order", func(ctx context.Context, payload string) {
		received <- payload
	})
	require.NoError(t, err)

	want := make([]string, 0, n)
	for i := range n {
		payload := strconv.Itoa(i)
		want = append(want, payload)
		require.NoError(t, broker.Publish(ctx, "order", payload))
	}

	got := make([]string, 0, n)
	for range n {
		select {
		case payload := <-received:
			got = append(got, payload)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d messages", len(got), n)
		}
	}
	assert.ElementsMatch(t, want, got)
}

func TestMemoryBroker_Close(t *testing.T) {
	ctx := context.Background()
	connected := false
	broker := NewMemoryBroker(Events{OnConnect: func() { connected = true }})
	assert.True(t, connected)

	_, err := broker.Subscribe(ctx, "order", func(context.Context, string) {})
	require.NoError(t, err)

	require.NoError(t, broker.Close())
	require.NoError(t, broker.Close())

	err = broker.Publish(ctx, "order", "{}")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = broker.Subscribe(ctx, "order", func(context.Context, string) {})
	assert.ErrorIs(t, err, ErrClosed)
}
