package topicmgr

import (
	"time"
)

// Core topic names. These are registered at construction and never evicted.
const (
	TopicNotification = "notification"
	TopicInventory    = "inventory"
	TopicOrder        = "order"
	TopicSystem       = "system"
)

// coreTopics is the fixed core set in its canonical listing order.
var coreTopics = []string{
	TopicNotification,
	TopicInventory,
	TopicOrder,
	TopicSystem,
}

// CoreTopics returns the names of the core topics in canonical order.
func CoreTopics() []string {
	out := make([]string, len(coreTopics))
	copy(out, coreTopics)
	return out
}

// IsCore reports whether name (after normalization) is a core topic.
func IsCore(name string) bool {
	n := normalize(name)
	for _, c := range coreTopics {
		if c == n {
			return true
		}
	}
	return false
}

// Topic is a point-in-time view of a registered topic.
type Topic struct {
	Name       string    `json:"name"`
	IsCore     bool      `json:"is_core"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// ActiveTopics partitions the registry into the fixed core set and the
// dynamically discovered topics.
type ActiveTopics struct {
	Core    []Topic `json:"core"`
	Dynamic []Topic `json:"dynamic"`
}

// CoreNames returns the names of the core topics in the listing.
func (a ActiveTopics) CoreNames() []string {
	return names(a.Core)
}

// DynamicNames returns the names of the dynamic topics in the listing.
func (a ActiveTopics) DynamicNames() []string {
	return names(a.Dynamic)
}

func names(topics []Topic) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.Name)
	}
	return out
}

// TopicStatus is the read-only status of a single topic name.
// LastUsedAt is the zero time when the topic does not exist.
type TopicStatus struct {
	Name       string    `json:"name"`
	Exists     bool      `json:"exists"`
	IsCore     bool      `json:"is_core"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Clock supplies the current time. Tests inject a controllable clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// TopicError represents structured errors in the topic management system
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// ErrorType defines the type of topic management error
type ErrorType string

const (
	ErrorInvalidName ErrorType = "invalid_name"
)

// Error implements the error interface
func (e *TopicError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TopicError) Unwrap() error {
	return e.Cause
}
