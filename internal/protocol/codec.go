// Package protocol defines the wire formats between the widget front end and
// the backend: the JSON bodies of the REST endpoints and the envelopes
// exchanged over the /ws session.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMissingType is returned by [Unmarshal] for envelopes without a type.
var ErrMissingType = errors.New("protocol: envelope missing type field")

// Marshal creates a JSON-encoded [Envelope] from a message type and payload.
// A nil payload is omitted.
func Marshal(msgType MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal payload for %q: %w", msgType, err)
		}
		raw = b
	}
	return sonic.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Unmarshal parses a JSON-encoded [Envelope] and returns its type and raw
// payload.
func Unmarshal(data []byte) (MessageType, json.RawMessage, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, ErrMissingType
	}
	return env.Type, env.Payload, nil
}

// UnmarshalPayload decodes a raw payload into T. An empty payload yields the
// zero value.
func UnmarshalPayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("protocol: unmarshal payload: %w", err)
	}
	return v, nil
}

// Encode and Decode are the JSON helpers used for REST bodies.
func Encode(v any) ([]byte, error) { return sonic.Marshal(v) }

// Decode unmarshals a REST body into v.
func Decode(data []byte, v any) error { return sonic.Unmarshal(data, v) }
