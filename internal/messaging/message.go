package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// Message is a decoded inbound message handed to a Handler.
type Message struct {
	// Topic is the normalized topic the message arrived on.
	Topic string
	// Raw is the exact JSON text received from the broker.
	Raw json.RawMessage
	// Data is Raw decoded into generic JSON values (maps, slices, string,
	// bool, nil and numbers). Numbers are float64 unless they are integers
	// a float64 cannot hold exactly, which become int64 or uint64. Numbers
	// outside every numeric type stay json.Number.
	Data any
	// ReceivedAt is when the subscriber dispatched the message.
	ReceivedAt time.Time
}

// Decode unmarshals the raw payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// Handler processes one inbound message. A returned error is logged and
// does not end the subscription.
type Handler func(ctx context.Context, msg Message) error

// encode serializes a message to its transport form.
func encode(message any) (string, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decode parses a transport payload into generic JSON values without
// losing integer precision.
func decode(payload string) (any, error) {
	d := json.NewDecoder(strings.NewReader(payload))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := d.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid data after top-level value at offset %d", d.InputOffset())
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		return number(t)
	default:
		return v
	}
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		if i >= -maxExactInt && i <= maxExactInt {
			return float64(i)
		}
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n
}
