package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanfork/mbus/internal/pubsub"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		topic  pubsub.Topic
		fields pubsub.Fields
	}{
		{
			name:   "plain",
			topic:  pubsub.T("chat", "messages"),
			fields: pubsub.Fields{"user": "ana", "text": "hi"},
		},
		{
			name:   "empty topic empty fields",
			topic:  pubsub.T(),
			fields: pubsub.Fields{},
		},
		{
			name:   "nil fields decode as empty",
			topic:  pubsub.T("a"),
			fields: nil,
		},
		{
			name:   "structured values",
			topic:  pubsub.T("metrics"),
			fields: pubsub.Fields{"ok": true, "rate": 0.5, "tags": []any{"x", "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.topic, tt.fields)
			require.NoError(t, err)

			topic, fields, err := Decode(data)
			require.NoError(t, err)
			assert.True(t, topic.Equal(tt.topic), "topic %v != %v", topic, tt.topic)

			if len(tt.fields) == 0 {
				assert.Empty(t, fields)
			} else {
				assert.Equal(t, len(tt.fields), len(fields))
				assert.Equal(t, tt.fields["user"], fields["user"])
				assert.Equal(t, tt.fields["ok"], fields["ok"])
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("not json"),
		[]byte(`{"fields":{}}`), // no topic at all
		[]byte(`{}`),
		nil,
	} {
		_, _, err := Decode(data)
		assert.Error(t, err, "payload %q", data)
	}
}

func TestDecode_EmptyTopicIsValid(t *testing.T) {
	topic, fields, err := Decode([]byte(`{"topic":[]}`))
	require.NoError(t, err)
	assert.True(t, topic.IsCatchAll())
	assert.NotNil(t, fields)
}
