package testutils

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/herald/internal/pubsub"
)

// SetEnvFromFile loads a dotenv file relative to the project root into the
// test environment with t.Setenv, so values are restored after the test.
func SetEnvFromFile(t *testing.T, name string) {
	t.Helper()

	path, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			break
		}
		if path == filepath.Dir(path) {
			t.Fatalf("could not find project root with go.mod")
		}
		path = filepath.Dir(path)
	}

	env, err := godotenv.Read(filepath.Join(path, name))
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakeBroker is an in-process pubsub.Broker with scriptable subscriber
// counts and failures. Publish delivers synchronously to local handlers.
type FakeBroker struct {
	mu        sync.Mutex
	handlers  map[string][]*fakeSub
	counts    map[string]int64
	countErrs map[string]error
	countHook func(ctx context.Context, topic string)
	subHook   func(ctx context.Context, topic string)

	PublishErr   error
	SubscribeErr error
	Published    []FakeMessage
	CountQueries []string
	Closed       bool
}

// FakeMessage is a payload recorded by FakeBroker.Publish.
type FakeMessage struct {
	Topic   string
	Payload string
}

// NewFakeBroker creates an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		handlers:  make(map[string][]*fakeSub),
		counts:    make(map[string]int64),
		countErrs: make(map[string]error),
	}
}

// SetSubscriberCount overrides the count reported for topic regardless of
// local handlers.
func (b *FakeBroker) SetSubscriberCount(topic string, n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[topic] = n
}

// FailSubscriberCount makes count queries for topic return err.
func (b *FakeBroker) FailSubscriberCount(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countErrs[topic] = err
}

// OnSubscriberCount runs hook at the start of every count query, outside the
// broker lock.
func (b *FakeBroker) OnSubscriberCount(hook func(ctx context.Context, topic string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countHook = hook
}

// OnSubscribe runs hook at the start of every Subscribe, outside the broker
// lock.
func (b *FakeBroker) OnSubscribe(hook func(ctx context.Context, topic string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subHook = hook
}

// Publish records the payload and hands it to every local handler.
func (b *FakeBroker) Publish(ctx context.Context, topic, payload string) error {
	b.mu.Lock()
	if b.Closed {
		b.mu.Unlock()
		return pubsub.ErrClosed
	}
	if b.PublishErr != nil {
		err := b.PublishErr
		b.mu.Unlock()
		return err
	}
	b.Published = append(b.Published, FakeMessage{Topic: topic, Payload: payload})
	subs := append([]*fakeSub(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(ctx, payload)
	}
	return nil
}

// Deliver hands payload to the local handlers of topic without recording a
// publish.
func (b *FakeBroker) Deliver(ctx context.Context, topic, payload string) {
	b.mu.Lock()
	subs := append([]*fakeSub(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(ctx, payload)
	}
}

// Subscribe adds a local handler.
func (b *FakeBroker) Subscribe(ctx context.Context, topic string, onMessage pubsub.MessageHandler) (pubsub.Subscription, error) {
	b.mu.Lock()
	hook := b.subHook
	b.mu.Unlock()

	if hook != nil {
		hook(ctx, topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Closed {
		return nil, pubsub.ErrClosed
	}
	if b.SubscribeErr != nil {
		return nil, b.SubscribeErr
	}
	s := &fakeSub{broker: b, topic: topic, handler: onMessage}
	b.handlers[topic] = append(b.handlers[topic], s)
	return s, nil
}

// SubscriberCount returns the scripted count, or the local handler count
// when none was set.
func (b *FakeBroker) SubscriberCount(ctx context.Context, topic string) (int64, error) {
	b.mu.Lock()
	hook := b.countHook
	b.CountQueries = append(b.CountQueries, topic)
	b.mu.Unlock()

	if hook != nil {
		hook(ctx, topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.countErrs[topic]; err != nil {
		return 0, err
	}
	if n, ok := b.counts[topic]; ok {
		return n, nil
	}
	return int64(len(b.handlers[topic])), nil
}

// Close marks the broker closed.
func (b *FakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Handlers returns the number of local handlers on topic.
func (b *FakeBroker) Handlers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}

type fakeSub struct {
	broker  *FakeBroker
	topic   string
	handler pubsub.MessageHandler
	once    sync.Once
}

func (s *fakeSub) Topic() string { return s.topic }

func (s *fakeSub) Unsubscribe(context.Context) error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.handlers[s.topic]
		for i, other := range subs {
			if other == s {
				b.handlers[s.topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.handlers[s.topic]) == 0 {
			delete(b.handlers, s.topic)
		}
	})
	return nil
}
