// Package wmbridge relays mbus messages over a watermill Pub/Sub
// backend instead of the broker's websocket relay. Every Coupler
// attached to the same watermill stream behaves like a bridge attached
// to the same broker: local publishes go out on the stream, stream
// messages come in as local-only publishes.
package wmbridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/beanfork/mbus/internal/pubsub"
	"github.com/beanfork/mbus/internal/wire"
)

// metaKeyOrigin tags outgoing stream messages with the coupler that
// produced them, so a coupler can ignore its own messages when the
// backend echoes them back (gochannel does).
const metaKeyOrigin = "mbus_origin"

// ErrClosed is returned by Forward after the coupler has been closed.
var ErrClosed = errors.New("wmbridge: coupler closed")

// Coupler ties one PubSub to one watermill stream.
type Coupler struct {
	ps     *pubsub.PubSub
	pub    message.Publisher
	stream string
	id     string

	cancel context.CancelFunc
	done   chan struct{}
}

// Couple attaches ps to the named stream. It installs itself as ps's
// forwarder, so it takes the slot a broker bridge would otherwise use.
// Close detaches and stops the inbound loop; the watermill publisher
// and subscriber stay open, they belong to the caller.
func Couple(ctx context.Context, ps *pubsub.PubSub, pub message.Publisher, sub message.Subscriber, stream string) (*Coupler, error) {
	ctx, cancel := context.WithCancel(ctx)

	messages, err := sub.Subscribe(ctx, stream)
	if err != nil {
		cancel()
		return nil, err
	}

	c := &Coupler{
		ps:     ps,
		pub:    pub,
		stream: stream,
		id:     watermill.NewUUID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ps.AttachForwarder(c)

	go c.receiveLoop(messages)
	return c, nil
}

// Forward implements pubsub.Forwarder.
func (c *Coupler) Forward(topic pubsub.Topic, fields pubsub.Fields) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := wire.Encode(topic, fields)
	if err != nil {
		return err
	}

	wmMsg := message.NewMessage(watermill.NewUUID(), data)
	wmMsg.Metadata.Set(metaKeyOrigin, c.id)
	return c.pub.Publish(c.stream, wmMsg)
}

func (c *Coupler) receiveLoop(messages <-chan *message.Message) {
	defer close(c.done)

	for wmMsg := range messages {
		if wmMsg.Metadata.Get(metaKeyOrigin) == c.id {
			wmMsg.Ack()
			continue
		}

		topic, fields, err := wire.Decode(wmMsg.Payload)
		if err != nil {
			slog.Warn("dropping malformed stream message",
				"stream", c.stream, "msg_id", wmMsg.UUID, "error", err)
			wmMsg.Ack()
			continue
		}

		if err := c.ps.PublishLocal(topic, fields); err != nil {
			slog.Error("subscriber failed on stream message",
				"topic", topic.String(), "msg_id", wmMsg.UUID, "error", err)
			wmMsg.Nack()
			continue
		}
		wmMsg.Ack()
	}
}

// Close detaches the coupler from its PubSub and ends the inbound loop.
func (c *Coupler) Close() error {
	c.ps.DetachForwarder(c)
	c.cancel()
	<-c.done
	return nil
}
