package pubsub

import (
	"log/slog"
	"sync"
)

// Fields carries a message's named values to subscriber callbacks.
type Fields map[string]any

// Callback is the function invoked for each matching subscription. It
// always receives the full topic the message was published on, never the
// prefix that matched. Returning a non-nil error aborts delivery to any
// remaining subscribers of that publish call and propagates to the
// publisher.
type Callback func(topic Topic, fields Fields) error

// SubscribeOption configures a subscription's field contract.
type SubscribeOption func(*subscription)

// Accepts declares the field names the callback understands. Fields
// outside the set are stripped from the delivered map with a warning.
// Without this option the callback accepts everything.
func Accepts(names ...string) SubscribeOption {
	return func(s *subscription) {
		s.accepts = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.accepts[n] = struct{}{}
		}
	}
}

// Requires declares field names that must be present in every delivered
// message. A message missing one is not delivered to this callback; a
// warning is logged instead.
func Requires(names ...string) SubscribeOption {
	return func(s *subscription) {
		s.requires = append(s.requires, names...)
	}
}

type subscription struct {
	topic    Topic
	fn       Callback
	accepts  map[string]struct{} // nil: accepts any field
	requires []string
}

// registry stores subscriptions keyed by exact topic and performs
// hierarchical dispatch. It is safe for concurrent use; callbacks run
// without the lock held, so they may subscribe and unsubscribe freely.
type registry struct {
	mu      sync.RWMutex
	buckets map[string][]*subscription
}

func newRegistry() *registry {
	return &registry{buckets: make(map[string][]*subscription)}
}

func (r *registry) subscribe(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sub.topic.key()
	r.buckets[k] = append(r.buckets[k], sub)
}

// unsubscribe removes the first occurrence of sub from its topic's
// bucket. Absent subscriptions are a no-op.
func (r *registry) unsubscribe(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sub.topic.key()
	subs := r.buckets[k]
	for i, s := range subs {
		if s == sub {
			r.buckets[k] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (r *registry) clear(topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, topic.key())
}

func (r *registry) clearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string][]*subscription)
}

// dispatch delivers fields to every subscription matching topic, most
// specific bucket first: the exact topic, then each proper prefix from
// longest to shortest, then the catch-all. Within a bucket subscribers
// run in the order they subscribed. The first callback error stops
// delivery and is returned.
func (r *registry) dispatch(topic Topic, fields Fields) error {
	// Snapshot matching buckets under the lock so callbacks can mutate
	// subscriptions without deadlocking. The snapshot fixes membership
	// for this publish call.
	r.mu.RLock()
	var matched []*subscription
	for t := topic; ; t = t.Parent() {
		matched = append(matched, r.buckets[t.key()]...)
		if t.IsCatchAll() {
			break
		}
	}
	r.mu.RUnlock()

	for _, s := range matched {
		deliver, ok := s.prepare(topic, fields)
		if !ok {
			continue
		}
		if err := s.fn(topic, deliver); err != nil {
			return err
		}
	}
	return nil
}

// prepare applies the subscription's field contract to a message. It
// returns the (possibly filtered) fields to deliver and whether the
// callback should run at all.
func (s *subscription) prepare(topic Topic, fields Fields) (Fields, bool) {
	for _, name := range s.requires {
		if _, ok := fields[name]; !ok {
			slog.Warn("subscriber skipped: required field missing",
				"topic", topic.String(), "field", name)
			return nil, false
		}
	}
	if s.accepts == nil {
		return fields, true
	}
	deliver := make(Fields, len(s.accepts))
	for name, v := range fields {
		if _, ok := s.accepts[name]; ok {
			deliver[name] = v
		} else {
			slog.Warn("dropping field not accepted by subscriber",
				"topic", topic.String(), "field", name)
		}
	}
	return deliver, true
}
