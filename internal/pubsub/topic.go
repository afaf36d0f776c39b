package pubsub

import (
	"strconv"
	"strings"
)

// Topic identifies a message's subject as an ordered sequence of name
// elements, e.g. T("chat", "messages", "new"). Topics form a hierarchy:
// a subscriber of T("chat") also receives everything published under
// T("chat", "messages") and deeper.
//
// The empty topic is the catch-all: subscribing to it receives every
// published message, while publishing to it reaches only catch-all
// subscribers.
type Topic []string

// T builds a Topic from its elements. T() is the catch-all topic.
func T(parts ...string) Topic {
	return Topic(parts)
}

// IsCatchAll reports whether t is the empty (catch-all) topic.
func (t Topic) IsCatchAll() bool {
	return len(t) == 0
}

// Parent returns the topic with the last element dropped. The parent of
// the catch-all topic is the catch-all topic.
func (t Topic) Parent() Topic {
	if len(t) == 0 {
		return t
	}
	return t[:len(t)-1]
}

// Equal reports whether two topics have the same elements in the same order.
func (t Topic) Equal(other Topic) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the topic for logs and diagnostics.
func (t Topic) String() string {
	if len(t) == 0 {
		return "()"
	}
	return strings.Join(t, ".")
}

// key returns the canonical registry key for the topic. Elements are
// length-prefixed so that no two distinct topics collide, regardless of
// what characters the elements contain.
func (t Topic) key() string {
	var b strings.Builder
	for _, part := range t {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
