package view

import (
	"context"
	"sync"

	"github.com/zenmed/carechat/internal/events"
	"github.com/zenmed/carechat/internal/flood"
)

// Session owns the viewer's live subscription: at most one channel feed is
// open at a time, and attaching to a new channel terminates the previous
// feed first. Closing the session tears down the feed and clears the
// viewer's pending rate-limit state.
type Session struct {
	self     string
	bus      events.Bus
	gate     *flood.Gate
	notifier Notifier

	mu   sync.Mutex
	view *ChannelView
	sub  *events.Subscription
}

// NewSession returns a session for the given viewer. gate and notifier may
// be nil.
func NewSession(self string, bus events.Bus, gate *flood.Gate, notifier Notifier) *Session {
	return &Session{self: self, bus: bus, gate: gate, notifier: notifier}
}

// Attach subscribes to a channel's event feed and returns its view. Any
// previous subscription is closed before the new one opens, so two live
// feeds never coexist. The pump goroutine ends when the subscription closes,
// whether locally or on transport failure; the session does not retry —
// resubscribing (a fresh Attach) plus a page refetch recovers any gap.
func (s *Session) Attach(ctx context.Context, channelID string) (*ChannelView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
		s.view = nil
	}

	sub, err := s.bus.Subscribe(ctx, channelID)
	if err != nil {
		return nil, err
	}
	v := NewChannelView(s.self, channelID, s.notifier)

	s.sub = sub
	s.view = v
	go pump(v, sub)
	return v, nil
}

// pump drains the subscription into the view until the feed closes.
func pump(v *ChannelView, sub *events.Subscription) {
	for ev := range sub.C {
		v.Apply(ev)
	}
}

// View returns the currently attached view, or nil.
func (s *Session) View() *ChannelView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Close terminates the active subscription and clears the viewer's pending
// flood-control window. Called on unmount.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
		s.view = nil
	}
	if s.gate != nil {
		s.gate.Reset(s.self)
	}
}
