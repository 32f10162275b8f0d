package messaging

import (
	"errors"
	"fmt"
)

// ErrSubscriptionCanceled is returned by Subscribe when Unsubscribe for the
// same topic ran while the broker subscription was opening. No handler is
// installed.
var ErrSubscriptionCanceled = errors.New("subscription canceled while opening")

// PublishError reports a publish that did not reach the broker.
// Op is "validate" for an unusable topic name, "encode" when the message
// could not be serialized and "publish" when the broker failed.
type PublishError struct {
	Topic string
	Op    string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// DuplicateSubscriptionError is returned when a Subscriber already holds a
// handler for the topic.
type DuplicateSubscriptionError struct {
	Topic string
}

func (e *DuplicateSubscriptionError) Error() string {
	return fmt.Sprintf("already subscribed to topic %s", e.Topic)
}

// DeserializationError describes an inbound payload that was not valid JSON.
// It is logged per message; the subscription stays active.
type DeserializationError struct {
	Topic   string
	Payload string
	Err     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode message on %s: %v", e.Topic, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// SubscribeError wraps a broker failure while opening a subscription.
type SubscribeError struct {
	Topic string
	Err   error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Topic, e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }
