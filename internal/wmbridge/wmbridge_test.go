package wmbridge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanfork/mbus/internal/pubsub"
	"github.com/beanfork/mbus/internal/wmbridge"
)

// couple attaches a fresh PubSub to the stream and records everything
// its catch-all subscriber receives.
type couple struct {
	ps *pubsub.PubSub
	c  *wmbridge.Coupler

	mu     sync.Mutex
	topics []pubsub.Topic
}

func newCouple(t *testing.T, bus *gochannel.GoChannel, stream string) *couple {
	t.Helper()
	cp := &couple{ps: pubsub.New()}
	cp.ps.Subscribe(pubsub.T(), func(topic pubsub.Topic, fields pubsub.Fields) error {
		cp.mu.Lock()
		defer cp.mu.Unlock()
		cp.topics = append(cp.topics, topic)
		return nil
	})

	c, err := wmbridge.Couple(context.Background(), cp.ps, bus, bus, stream)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	cp.c = c
	return cp
}

func (cp *couple) received() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.topics)
}

func newBus(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestCouple_RelaysBetweenPubSubs(t *testing.T) {
	bus := newBus(t)
	a := newCouple(t, bus, "mbus")
	b := newCouple(t, bus, "mbus")

	require.NoError(t, a.ps.Publish(pubsub.T("chat", "new"), pubsub.Fields{"user": "ana"}))

	require.Eventually(t, func() bool { return b.received() == 1 },
		5*time.Second, 10*time.Millisecond)
	b.mu.Lock()
	assert.True(t, b.topics[0].Equal(pubsub.T("chat", "new")))
	b.mu.Unlock()

	// The origin hears its own message exactly once (the synchronous
	// local dispatch), even though gochannel echoes the stream message
	// back to every subscriber.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, a.received())
}

func TestCouple_LocalOnlyStaysLocal(t *testing.T) {
	bus := newBus(t)
	a := newCouple(t, bus, "mbus")
	b := newCouple(t, bus, "mbus")

	require.NoError(t, a.ps.PublishLocal(pubsub.T("private"), pubsub.Fields{}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 0, b.received())
}

func TestCouple_CloseDetaches(t *testing.T) {
	bus := newBus(t)
	a := newCouple(t, bus, "mbus")

	require.NoError(t, a.c.Close())
	assert.ErrorIs(t, a.c.Forward(pubsub.T("x"), pubsub.Fields{}), wmbridge.ErrClosed)

	// Publishing after Close is local-only by construction.
	require.NoError(t, a.ps.Publish(pubsub.T("x"), pubsub.Fields{}))
}
