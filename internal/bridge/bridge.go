// Package bridge connects a local PubSub to a remote broker. The bridge
// mirrors every non-local publish onto the connection and injects every
// frame received from the broker into the local bus as a local-only
// publish, so a message never travels the same link twice.
package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/beanfork/mbus/internal/pubsub"
	"github.com/beanfork/mbus/internal/wire"
)

// ErrClosed is returned by Forward after the bridge has disconnected.
var ErrClosed = errors.New("bridge: connection closed")

// Bridge ties one PubSub to one broker connection. Create it with Dial;
// a closed bridge is done for good, reconnection is the caller's policy.
type Bridge struct {
	ps   *pubsub.PubSub
	conn *websocket.Conn

	// writeMu serializes outbound frames from concurrent publishers.
	writeMu sync.Mutex

	done     chan struct{}
	closeErr error
	closing  sync.Once
}

// Dial connects to the broker at url (e.g. "ws://host:port"), presents
// the authkey, attaches the bridge as ps's forwarder and starts the
// receive loop. The context bounds the dial only, not the bridge's
// lifetime.
func Dial(ctx context.Context, url string, authKey []byte, ps *pubsub.PubSub) (*Bridge, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+hex.EncodeToString(authKey))

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("bridge: broker rejected authkey: %w", err)
		}
		return nil, fmt.Errorf("bridge: dialing %s: %w", url, err)
	}

	b := &Bridge{
		ps:   ps,
		conn: conn,
		done: make(chan struct{}),
	}
	ps.AttachForwarder(b)
	go b.receiveLoop()

	slog.Debug("bridge connected", "url", url)
	return b, nil
}

// Forward implements pubsub.Forwarder. It runs on the publishing
// goroutine and may block on transport backpressure; the bridge adds no
// buffering of its own.
func (b *Bridge) Forward(topic pubsub.Topic, fields pubsub.Fields) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	data, err := wire.Encode(topic, fields)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.Write(context.Background(), websocket.MessageText, data)
}

// receiveLoop blocks on the connection and publishes every decoded
// frame locally. Marking the publish local-only is what prevents the
// echo loop between two directly connected peers. The loop ends on the
// first read error; the bridge is disconnected from then on.
func (b *Bridge) receiveLoop() {
	for {
		_, data, err := b.conn.Read(context.Background())
		if err != nil {
			b.shutdown(err)
			return
		}

		topic, fields, err := wire.Decode(data)
		if err != nil {
			slog.Warn("dropping malformed frame from broker", "error", err)
			continue
		}

		if err := b.ps.PublishLocal(topic, fields); err != nil {
			slog.Error("subscriber failed on remote message",
				"topic", topic.String(), "error", err)
		}
	}
}

// Close disconnects the bridge. The receive loop exits on its next
// read, and Done is closed. Safe to call more than once.
func (b *Bridge) Close() error {
	b.shutdown(nil)
	return nil
}

func (b *Bridge) shutdown(cause error) {
	b.closing.Do(func() {
		b.ps.DetachForwarder(b)
		b.closeErr = cause
		close(b.done)
		b.conn.Close(websocket.StatusNormalClosure, "")
		if cause != nil && websocket.CloseStatus(cause) != websocket.StatusNormalClosure {
			slog.Debug("bridge disconnected", "error", cause)
		}
	})
}

// Done is closed once the bridge has disconnected, whether by Close or
// by connection failure.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err reports what ended the bridge: nil after a clean Close, the read
// error otherwise. Valid once Done is closed.
func (b *Bridge) Err() error {
	select {
	case <-b.done:
	default:
		return nil
	}
	if b.closeErr != nil && websocket.CloseStatus(b.closeErr) == websocket.StatusNormalClosure {
		return nil
	}
	return b.closeErr
}

// Connected reports whether the bridge is still attached and relaying.
func (b *Bridge) Connected() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
