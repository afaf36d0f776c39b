// Package wire defines the frame format exchanged between bridges and
// the broker. A frame is one self-describing JSON document per
// websocket message; the transport supplies the framing.
package wire

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/beanfork/mbus/internal/pubsub"
)

// RelayPath is the broker endpoint bridges connect to. Both sides of
// the protocol agree on it here.
const RelayPath = "/v1/relay"

// Frame is the on-the-wire representation of one published message.
// Only primitive and structured JSON values survive the trip; anything
// a subscriber needs beyond that belongs in the application layer. The
// decoder never instantiates arbitrary types.
type Frame struct {
	Topic  []string       `json:"topic"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Encode serializes a topic and its fields into a frame payload.
func Encode(topic pubsub.Topic, fields pubsub.Fields) ([]byte, error) {
	f := Frame{Topic: topic, Fields: fields}
	if f.Topic == nil {
		f.Topic = []string{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding frame for %s: %w", topic, err)
	}
	return data, nil
}

// Decode parses a frame payload back into its topic and fields. The
// inverse of Encode: Decode(Encode(t, f)) preserves the topic exactly,
// including the empty (catch-all) topic, and an empty field mapping.
func Decode(data []byte) (pubsub.Topic, pubsub.Fields, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Topic == nil {
		return nil, nil, fmt.Errorf("decoding frame: missing topic")
	}
	fields := pubsub.Fields(f.Fields)
	if fields == nil {
		fields = pubsub.Fields{}
	}
	return pubsub.Topic(f.Topic), fields, nil
}
