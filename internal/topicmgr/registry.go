package topicmgr

import (
	"sync"
	"time"
)

// Registry tracks known topics and when each one was last used.
// It is safe for concurrent use; no method performs I/O.
type Registry struct {
	mu       sync.RWMutex
	lastUsed map[string]time.Time
	dynamic  []string // insertion order of non-core topics
	clock    Clock
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for LastUsedAt timestamps.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewRegistry creates a registry pre-populated with the core topics.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		lastUsed: make(map[string]time.Time),
		clock:    SystemClock(),
	}
	for _, opt := range opts {
		opt(r)
	}

	now := r.clock.Now()
	for _, name := range coreTopics {
		r.lastUsed[name] = now
	}
	return r
}

// Register adds name if it is unseen. Registering a known topic does not
// refresh its timestamp; use Touch for that.
func (r *Registry) Register(name string) error {
	n, err := Normalize(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lastUsed[n]; exists {
		return nil
	}
	r.lastUsed[n] = r.clock.Now()
	r.dynamic = append(r.dynamic, n)
	return nil
}

// Touch marks name as used now. Unknown names are ignored.
func (r *Registry) Touch(name string) {
	n := normalize(name)
	if n == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lastUsed[n]; exists {
		r.lastUsed[n] = r.clock.Now()
	}
}

// List returns the core topics, always in canonical order, and the dynamic
// topics in insertion order.
func (r *Registry) List() ActiveTopics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := ActiveTopics{
		Core:    make([]Topic, 0, len(coreTopics)),
		Dynamic: make([]Topic, 0, len(r.dynamic)),
	}
	for _, name := range coreTopics {
		active.Core = append(active.Core, Topic{Name: name, IsCore: true, LastUsedAt: r.lastUsed[name]})
	}
	for _, name := range r.dynamic {
		active.Dynamic = append(active.Dynamic, Topic{Name: name, LastUsedAt: r.lastUsed[name]})
	}
	return active
}

// Snapshot returns a copy of the dynamic topics with their timestamps.
func (r *Registry) Snapshot() []Topic {
	return r.List().Dynamic
}

// Status returns the status of name without changing its timestamp.
func (r *Registry) Status(name string) TopicStatus {
	n := normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	lastUsed, exists := r.lastUsed[n]
	return TopicStatus{
		Name:       n,
		Exists:     exists,
		IsCore:     IsCore(n),
		LastUsedAt: lastUsed,
	}
}

// Evict removes a dynamic topic. It reports whether an entry was removed and
// always refuses core topics.
func (r *Registry) Evict(name string) bool {
	n := normalize(name)
	if IsCore(n) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(n)
}

// EvictIfIdle removes a dynamic topic only if it is still idle for longer
// than threshold at the moment of removal. The timestamp check and the
// removal happen under one lock, so a concurrent Touch either lands before
// the check (and the topic survives) or after the removal (and is a no-op).
func (r *Registry) EvictIfIdle(name string, threshold time.Duration) bool {
	n := normalize(name)
	if IsCore(n) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lastUsed, exists := r.lastUsed[n]
	if !exists {
		return false
	}
	if r.clock.Now().Sub(lastUsed) <= threshold {
		return false
	}
	return r.removeLocked(n)
}

// Len returns the number of registered topics, core included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.lastUsed)
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

func (r *Registry) removeLocked(name string) bool {
	if _, exists := r.lastUsed[name]; !exists {
		return false
	}
	delete(r.lastUsed, name)
	for i, d := range r.dynamic {
		if d == name {
			r.dynamic = append(r.dynamic[:i], r.dynamic[i+1:]...)
			break
		}
	}
	return true
}
