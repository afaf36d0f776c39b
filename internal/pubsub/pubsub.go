package pubsub

import (
	"log/slog"
	"sync"
)

// Forwarder mirrors non-local publishes to a remote peer. A bridge
// attaches itself as the forwarder of the PubSub it serves.
type Forwarder interface {
	Forward(topic Topic, fields Fields) error
}

// PubSub is a hierarchical publish-subscribe bus.
//
// Local dispatch is fully synchronous: every matching callback runs to
// completion, in order, on the publishing goroutine before Publish
// returns. A callback error aborts delivery to the remaining lower-
// priority subscribers of that call and is returned from Publish; this
// is the documented contract, not failure isolation.
type PubSub struct {
	reg *registry

	mu        sync.RWMutex
	forwarder Forwarder
}

// New creates an empty PubSub.
func New() *PubSub {
	return &PubSub{reg: newRegistry()}
}

// Subscription is the handle returned by Subscribe, used to remove the
// subscription later.
type Subscription struct {
	ps  *PubSub
	sub *subscription
}

// Subscribe registers fn for topic and every topic underneath it in the
// hierarchy. Subscribing the same function twice delivers each message
// twice. Options declare the callback's field contract up front.
func (p *PubSub) Subscribe(topic Topic, fn Callback, opts ...SubscribeOption) *Subscription {
	sub := &subscription{topic: topic, fn: fn}
	for _, opt := range opts {
		opt(sub)
	}
	p.reg.subscribe(sub)
	return &Subscription{ps: p, sub: sub}
}

// Unsubscribe removes a subscription. Removing one that is already gone
// is a no-op.
func (p *PubSub) Unsubscribe(s *Subscription) {
	if s == nil || s.ps != p {
		return
	}
	p.reg.unsubscribe(s.sub)
}

// Clear removes every subscription for exactly topic. Subscribers of
// other topics, including prefixes of topic, are untouched.
func (p *PubSub) Clear(topic Topic) {
	p.reg.clear(topic)
}

// ClearAll removes every subscription for every topic.
func (p *PubSub) ClearAll() {
	p.reg.clearAll()
}

// Publish delivers fields to all matching local subscribers and, when a
// forwarder is attached, mirrors the message to the remote peer. The
// forward step is skipped on a dispatch error. Forward failures are
// logged, not returned: remote trouble stays contained to the bridge.
func (p *PubSub) Publish(topic Topic, fields Fields) error {
	if err := p.reg.dispatch(topic, fields); err != nil {
		return err
	}
	p.mu.RLock()
	fwd := p.forwarder
	p.mu.RUnlock()
	if fwd != nil {
		if err := fwd.Forward(topic, fields); err != nil {
			slog.Error("failed to forward message", "topic", topic.String(), "error", err)
		}
	}
	return nil
}

// PublishLocal delivers fields to local subscribers only. Messages a
// bridge injects from the network arrive this way, which is what keeps
// two connected peers from relaying the same message back and forth
// forever.
func (p *PubSub) PublishLocal(topic Topic, fields Fields) error {
	return p.reg.dispatch(topic, fields)
}

// AttachForwarder installs the forwarder that mirrors non-local
// publishes. Only one forwarder can be attached at a time.
func (p *PubSub) AttachForwarder(f Forwarder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forwarder = f
}

// DetachForwarder removes the forwarder if f is the one attached.
func (p *PubSub) DetachForwarder(f Forwarder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.forwarder == f {
		p.forwarder = nil
	}
}
