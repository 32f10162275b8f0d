package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/testutils"
	"github.com/nfrund/herald/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	topic   string
	message any
	err     error
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, message any) (messaging.PublishResult, error) {
	if m.err != nil {
		return messaging.PublishResult{}, m.err
	}
	m.topic = topic
	m.message = message
	return messaging.PublishResult{Topic: topic, Message: message}, nil
}

func TestPublish_WrapsPayload(t *testing.T) {
	pub := &mockPublisher{}
	payload := StockUpdatePayload{ProductID: "PROD123", Quantity: 50, Warehouse: "WH001"}

	env, err := Publish(context.Background(), pub, StockUpdate, payload)
	require.NoError(t, err)

	assert.Equal(t, topicmgr.TopicInventory, pub.topic)
	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, "stock_update", env.Type)
	assert.False(t, env.OccurredAt.IsZero())
	assert.JSONEq(t, `{"productId":"PROD123","quantity":50,"warehouse":"WH001"}`, string(env.Data))
	assert.Equal(t, env, pub.message)
}

func TestPublish_PropagatesError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}

	_, err := Publish(context.Background(), pub, SystemWarning, SystemWarningPayload{Level: "warning"})
	assert.EqualError(t, err, "broker down")
}

func TestEvent_Unwrap(t *testing.T) {
	env, err := WelcomeEmail.Wrap(WelcomeEmailPayload{To: "user@example.com", Name: "Ada"})
	require.NoError(t, err)

	payload, err := WelcomeEmail.Unwrap(env)
	require.NoError(t, err)
	assert.Equal(t, WelcomeEmailPayload{To: "user@example.com", Name: "Ada"}, payload)

	_, err = OrderConfirmation.Unwrap(env)
	assert.Error(t, err)
}

func TestEvent_OnTopic(t *testing.T) {
	alerts := SystemWarning.OnTopic("custom_alerts")
	assert.Equal(t, "custom_alerts", alerts.Topic())
	assert.Equal(t, "system_warning", alerts.Type())
	assert.Equal(t, topicmgr.TopicSystem, SystemWarning.Topic())
}

func TestDefinitionsUseCoreTopics(t *testing.T) {
	topics := map[string]string{
		Email.Type():              Email.Topic(),
		WelcomeEmail.Type():       WelcomeEmail.Topic(),
		OrderConfirmation.Type():  OrderConfirmation.Topic(),
		StockUpdate.Type():        StockUpdate.Topic(),
		LowStockAlert.Type():      LowStockAlert.Topic(),
		OrderCreated.Type():       OrderCreated.Topic(),
		OrderStatusChanged.Type(): OrderStatusChanged.Topic(),
		SystemWarning.Type():      SystemWarning.Topic(),
	}
	assert.Len(t, topics, 8, "type tags are unique")
	for typ, topic := range topics {
		assert.True(t, topicmgr.IsCore(topic), typ)
	}
}

func message(t *testing.T, topic string, v any) messaging.Message {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return messaging.Message{Topic: topic, Raw: raw}
}

func TestRouter_Dispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRouter(nil)

	var stock []StockUpdatePayload
	var low []LowStockAlertPayload
	On(r, StockUpdate, func(ctx context.Context, env Envelope, p StockUpdatePayload) error {
		stock = append(stock, p)
		return nil
	})
	On(r, LowStockAlert, func(ctx context.Context, env Envelope, p LowStockAlertPayload) error {
		low = append(low, p)
		return nil
	})

	env, err := StockUpdate.Wrap(StockUpdatePayload{ProductID: "P1", Quantity: 3})
	require.NoError(t, err)
	require.NoError(t, r.Handle(ctx, message(t, "inventory", env)))

	// A bare {type, data} message without an id is accepted.
	require.NoError(t, r.Handle(ctx, message(t, "inventory", map[string]any{
		"type": "low_stock_alert",
		"data": map[string]any{"productId": "P2", "currentStock": 1},
	})))

	assert.Equal(t, []StockUpdatePayload{{ProductID: "P1", Quantity: 3}}, stock)
	assert.Equal(t, []LowStockAlertPayload{{ProductID: "P2", CurrentStock: 1}}, low)
	assert.Equal(t, []string{"inventory"}, r.Topics())
}

func TestRouter_IgnoresUnknown(t *testing.T) {
	ctx := context.Background()
	r := NewRouter(nil)
	called := false
	On(r, OrderCreated, func(context.Context, Envelope, OrderCreatedPayload) error {
		called = true
		return nil
	})

	assert.NoError(t, r.Handle(ctx, message(t, "order", map[string]any{"type": "order_refunded"})))
	assert.NoError(t, r.Handle(ctx, message(t, "order", []int{1, 2})))
	assert.NoError(t, r.Handle(ctx, message(t, "order", "plain text")))
	assert.NoError(t, r.Handle(ctx, message(t, "inventory", map[string]any{"type": "order_created"})))
	assert.False(t, called)
}

func TestRouter_HandlerErrorsAreReturned(t *testing.T) {
	r := NewRouter(nil)
	On(r, OrderCreated, func(context.Context, Envelope, OrderCreatedPayload) error {
		return errors.New("downstream failed")
	})

	env, err := OrderCreated.Wrap(OrderCreatedPayload{OrderID: "A1"})
	require.NoError(t, err)

	err = r.Handle(context.Background(), message(t, "order", env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream failed")

	bad := message(t, "order", map[string]any{"type": "order_created", "data": "not an object"})
	assert.Error(t, r.Handle(context.Background(), bad))
}

func TestRouter_SubscribeEndToEnd(t *testing.T) {
	ctx := context.Background()
	registry := topicmgr.NewRegistry()
	broker := testutils.NewFakeBroker()
	pub := messaging.NewPublisher(registry, broker)
	sub := messaging.NewSubscriber(registry, broker)

	r := NewRouter(nil)
	var got []OrderStatusChangedPayload
	On(r, OrderStatusChanged, func(ctx context.Context, env Envelope, p OrderStatusChangedPayload) error {
		got = append(got, p)
		return nil
	})
	require.NoError(t, r.Subscribe(ctx, sub))
	assert.Equal(t, []string{"order"}, sub.Topics())

	_, err := Publish(ctx, pub, OrderStatusChanged, OrderStatusChangedPayload{OrderID: "A1", From: "pending", To: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, []OrderStatusChangedPayload{{OrderID: "A1", From: "pending", To: "shipped"}}, got)
}
