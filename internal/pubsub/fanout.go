package pubsub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// fanout keeps the handlers registered per topic for brokers that hold one
// channel subscription per topic and multiplex it to local handlers.
type fanout struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]MessageHandler
}

func newFanout() *fanout {
	return &fanout{topics: make(map[string]map[uint64]MessageHandler)}
}

// add registers h and reports whether it is the first handler for topic.
func (f *fanout) add(topic string, h MessageHandler) (id uint64, first bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	handlers, ok := f.topics[topic]
	if !ok {
		handlers = make(map[uint64]MessageHandler)
		f.topics[topic] = handlers
	}
	handlers[f.nextID] = h
	return f.nextID, !ok
}

// remove drops a handler and reports whether the topic has no handlers left.
func (f *fanout) remove(topic string, id uint64) (last bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	handlers, ok := f.topics[topic]
	if !ok {
		return false
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(f.topics, topic)
		return true
	}
	return false
}

func (f *fanout) handlers(topic string) []MessageHandler {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]uint64, 0, len(f.topics[topic]))
	for id := range f.topics[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]MessageHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.topics[topic][id])
	}
	return out
}

func (f *fanout) count(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.topics[topic])
}

// deliver invokes every handler of topic in registration order. A panicking
// handler is logged and does not stop delivery to the others.
func (f *fanout) deliver(ctx context.Context, logger *slog.Logger, topic, payload string) {
	for _, h := range f.handlers(topic) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Message handler panicked", "topic", topic, "panic", r)
				}
			}()
			h(ctx, payload)
		}()
	}
}

// subscription is the Subscription handed out by fanout-based brokers.
type subscription struct {
	topic string
	once  sync.Once
	unsub func(ctx context.Context) error
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.unsub(ctx)
	})
	return err
}
