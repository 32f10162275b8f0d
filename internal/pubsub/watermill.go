package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// metaKeyTopic carries the topic name through watermill's message metadata.
const metaKeyTopic = "topic"

// MemoryBroker implements Broker on watermill's in-process GoChannel.
// It is used for local development and tests; subscriber counts are the
// number of live subscriptions held in this process.
//
// GoChannel hands each message to subscribers from its own goroutine, so
// successive publishes to one topic may reach handlers out of order. Tests
// that publish several messages must not assume delivery order.
type MemoryBroker struct {
	channel *gochannel.GoChannel
	fan     *fanout
	logger  *slog.Logger
	events  Events

	opMu    sync.Mutex // serializes channel subscribe/teardown per broker
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewMemoryBroker initializes an in-memory broker.
func NewMemoryBroker(events Events) *MemoryBroker {
	logger := watermill.NewStdLogger(false, false)
	// GoChannel is a simple in-memory pub/sub implementation.
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		logger,
	)

	b := &MemoryBroker{
		channel: goChannel,
		fan:     newFanout(),
		logger:  slog.Default().With("component", "pubsub.memory"),
		events:  events,
		cancels: make(map[string]context.CancelFunc),
	}
	events.connected()
	return b
}

// Publish implements Broker.
func (b *MemoryBroker) Publish(ctx context.Context, topic, payload string) error {
	b.opMu.Lock()
	closed := b.closed
	b.opMu.Unlock()
	if closed {
		return ErrClosed
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	msg.Metadata.Set(metaKeyTopic, topic)
	msg.SetContext(ctx)

	if err := b.channel.Publish(topic, msg); err != nil {
		b.events.failed(err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, onMessage MessageHandler) (Subscription, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	id, first := b.fan.add(topic, onMessage)
	if first {
		if err := b.openLocked(topic); err != nil {
			b.fan.remove(topic, id)
			b.events.failed(err)
			return nil, err
		}
	}

	return &subscription{
		topic: topic,
		unsub: func(ctx context.Context) error {
			b.opMu.Lock()
			defer b.opMu.Unlock()

			if b.fan.remove(topic, id) {
				b.closeLocked(topic)
			}
			return nil
		},
	}, nil
}

// openLocked starts the GoChannel subscription that feeds topic's handlers.
func (b *MemoryBroker) openLocked(topic string) error {
	// The subscription lives until the last handler leaves, not for the
	// duration of the caller's context.
	subCtx, cancel := context.WithCancel(context.Background())
	messages, err := b.channel.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	b.cancels[topic] = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for wmMsg := range messages {
			b.fan.deliver(wmMsg.Context(), b.logger, topic, string(wmMsg.Payload))
			// Handlers own their error reporting; delivery is always acknowledged.
			wmMsg.Ack()
		}
		b.logger.Debug("Subscription message loop ended", "topic", topic)
	}()
	return nil
}

func (b *MemoryBroker) closeLocked(topic string) {
	if cancel, ok := b.cancels[topic]; ok {
		cancel()
		delete(b.cancels, topic)
	}
}

// SubscriberCount implements Broker.
func (b *MemoryBroker) SubscriberCount(ctx context.Context, topic string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(b.fan.count(topic)), nil
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.opMu.Lock()
	if b.closed {
		b.opMu.Unlock()
		return nil
	}
	b.closed = true
	for topic := range b.cancels {
		b.closeLocked(topic)
	}
	b.opMu.Unlock()

	// Closing the GoChannel closes every subscriber output channel.
	err := b.channel.Close()
	b.wg.Wait()
	return err
}
