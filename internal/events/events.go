// Package events carries channel events between the command path and
// connected views: new messages, read receipts and typing signals.
package events

import (
	"context"

	"github.com/zenmed/carechat/internal/data"
)

// EventType discriminates the event payload.
type EventType string

const (
	// EventMessage carries a newly appended message.
	EventMessage EventType = "message"
	// EventRead reports a user that advanced its read cursor.
	EventRead EventType = "read"
	// EventTyping is a transient signal; it is never persisted.
	EventTyping EventType = "typing"
)

// Event is one channel-scoped event. Message is set for message events;
// UserID for read and typing events.
type Event struct {
	Type      EventType     `json:"type"`
	ChannelID string        `json:"channel_id"`
	Message   *data.Message `json:"message,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
}

// Subscription is one live event feed for a channel. C is closed when the
// subscription ends, whether by Close or by a transport failure; the owner
// decides whether to resubscribe.
type Subscription struct {
	C <-chan Event

	cancel func()
}

// Close terminates the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Bus is the event stream transport. Two variants exist: the NATS-backed bus
// and the in-memory hub used with the fixture store and in tests. Delivery is
// best-effort; a reconnecting view recovers gaps with a paginated refetch.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, channelID string) (*Subscription, error)
}
