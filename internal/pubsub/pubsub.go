package pubsub

import (
	"context"
	"errors"
)

// ErrClosed is returned by broker operations after Close.
var ErrClosed = errors.New("pubsub: broker closed")

// MessageHandler receives the raw text payload of one message delivered on a
// topic. Handlers run on the broker's delivery goroutine for that topic.
type MessageHandler func(ctx context.Context, payload string)

// Subscription is a live handler registration on a broker topic.
type Subscription interface {
	// Topic returns the topic the subscription listens on.
	Topic() string
	// Unsubscribe removes the handler. When it was the last handler for the
	// topic the broker-level channel subscription is torn down as well.
	// Calling it more than once is a no-op.
	Unsubscribe(ctx context.Context) error
}

// Broker is the contract of the external publish/subscribe delivery
// mechanism. Payloads are UTF-8 text; the broker does not interpret them.
type Broker interface {
	// Publish delivers payload to every current subscriber of topic.
	Publish(ctx context.Context, topic, payload string) error
	// Subscribe registers onMessage for topic.
	Subscribe(ctx context.Context, topic string, onMessage MessageHandler) (Subscription, error)
	// SubscriberCount reports how many active subscribers the broker sees on topic.
	SubscriberCount(ctx context.Context, topic string) (int64, error)
	// Close releases connections and stops delivery.
	Close() error
}

// Events carries connection-level callbacks. Either field may be nil.
type Events struct {
	OnConnect func()
	OnError   func(err error)
}

func (e Events) connected() {
	if e.OnConnect != nil {
		e.OnConnect()
	}
}

func (e Events) failed(err error) {
	if e.OnError != nil && err != nil {
		e.OnError(err)
	}
}
