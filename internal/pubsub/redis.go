package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds connection settings for the Redis broker.
type RedisConfig struct {
	URL string
	// DialTimeout bounds the initial connection check.
	DialTimeout time.Duration
}

// RedisBroker implements Broker on Redis PUBLISH/SUBSCRIBE. All topics of
// one broker share a single subscriber connection; messages are fanned out
// to local handlers by channel name.
type RedisBroker struct {
	client *redis.Client
	fan    *fanout
	logger *slog.Logger
	events Events

	opMu   sync.Mutex // guards ps and closed, serializes SUBSCRIBE/UNSUBSCRIBE
	ps     *redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// NewRedisBroker connects to Redis and verifies the connection with PING.
func NewRedisBroker(ctx context.Context, cfg RedisConfig, events Events) (*RedisBroker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	logger := slog.Default().With("component", "pubsub.redis")

	// Reconnect backoff grows from 50ms up to 2s.
	opts.MinRetryBackoff = 50 * time.Millisecond
	opts.MaxRetryBackoff = 2 * time.Second
	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		logger.Info("Connected to Redis", "addr", opts.Addr)
		events.connected()
		return nil
	}

	b := &RedisBroker{
		client: redis.NewClient(opts),
		fan:    newFanout(),
		logger: logger,
		events: events,
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		logger.Error("Redis connection error", "error", err)
		events.failed(err)
		_ = b.client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return b, nil
}

// Ping checks connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, topic, payload string) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		b.logger.Error("Redis publish failed", "topic", topic, "error", err)
		b.events.failed(err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string, onMessage MessageHandler) (Subscription, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	id, first := b.fan.add(topic, onMessage)
	if first {
		if err := b.subscribeLocked(ctx, topic); err != nil {
			b.fan.remove(topic, id)
			b.logger.Error("Redis subscribe failed", "topic", topic, "error", err)
			b.events.failed(err)
			return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}

	return &subscription{
		topic: topic,
		unsub: func(ctx context.Context) error {
			b.opMu.Lock()
			defer b.opMu.Unlock()

			if !b.fan.remove(topic, id) || b.ps == nil || b.closed {
				return nil
			}
			if err := b.ps.Unsubscribe(ctx, topic); err != nil {
				b.events.failed(err)
				return fmt.Errorf("unsubscribe from %s: %w", topic, err)
			}
			return nil
		},
	}, nil
}

// subscribeLocked issues SUBSCRIBE, creating the shared connection and its
// delivery loop on first use.
func (b *RedisBroker) subscribeLocked(ctx context.Context, topic string) error {
	if b.ps != nil {
		return b.ps.Subscribe(ctx, topic)
	}

	ps := b.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation before delivery starts.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}
	b.ps = ps

	messages := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.fan.deliver(context.Background(), b.logger, msg.Channel, msg.Payload)
		}
		b.logger.Debug("Redis delivery loop ended")
	}()
	return nil
}

// SubscriberCount implements Broker using PUBSUB NUMSUB.
func (b *RedisBroker) SubscriberCount(ctx context.Context, topic string) (int64, error) {
	counts, err := b.client.PubSubNumSub(ctx, topic).Result()
	if err != nil {
		return 0, fmt.Errorf("numsub %s: %w", topic, err)
	}
	return counts[topic], nil
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	b.opMu.Lock()
	if b.closed {
		b.opMu.Unlock()
		return nil
	}
	b.closed = true
	ps := b.ps
	b.opMu.Unlock()

	var psErr error
	if ps != nil {
		psErr = ps.Close()
	}
	b.wg.Wait()

	if err := b.client.Close(); err != nil {
		return err
	}
	return psErr
}
