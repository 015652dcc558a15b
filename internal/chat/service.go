// Package chat implements the channel lifecycle controller and the direct
// command path: create, send, mark-read and close, with flood control on
// send and event publication toward connected views.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/events"
	"github.com/zenmed/carechat/internal/flood"
)

// Caller is the authenticated identity a command runs as, as supplied by the
// session provider.
type Caller struct {
	UserID string
	Role   data.Role
}

// Service orchestrates commands over a Store, publishes the resulting events
// on a Bus and gates sends through the flood limiter. The store, bus and
// directory variants are fixed at wiring time.
type Service struct {
	store data.Store
	dir   data.Directory
	bus   events.Bus
	gate  *flood.Gate

	now func() time.Time
}

// NewService wires a ready-to-use Service.
func NewService(store data.Store, dir data.Directory, bus events.Bus, gate *flood.Gate) *Service {
	return &Service{
		store: store,
		dir:   dir,
		bus:   bus,
		gate:  gate,
		now:   time.Now,
	}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create opens a new channel between the caller and the given participants.
// Channel creation is staff-initiated only; patient callers are rejected
// with ErrForbidden. The new channel is ACTIVE and carries one system
// message marking its creation.
func (s *Service) Create(ctx context.Context, caller Caller, participantIDs []string, meta data.ChannelMeta) (*data.Channel, error) {
	if !caller.Role.Staff() {
		return nil, fmt.Errorf("patient cannot create a channel: %w", data.ErrForbidden)
	}

	// The caller is always a member.
	ids := []string{caller.UserID}
	for _, id := range participantIDs {
		if id != caller.UserID {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("a channel needs at least two participants: %w", data.ErrValidation)
	}

	participants := make([]data.Participant, 0, len(ids))
	for _, id := range ids {
		u, err := s.dir.GetUserByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", id, err)
		}
		participants = append(participants, data.Participant{
			UserID:      u.ID,
			DisplayName: u.Name,
			AvatarURL:   u.AvatarURL,
			Role:        u.Role,
		})
	}

	meta.InitiatorRole = caller.Role
	ch := &data.Channel{
		ID:           uuid.NewString(),
		Participants: participants,
		Status:       data.StatusActive,
		Meta:         meta,
		Unread:       map[string]int{},
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}

	if _, err := s.appendSystem(ctx, ch.ID, data.SystemCreated, "Conversation started"); err != nil {
		return nil, err
	}
	return s.store.GetChannel(ctx, ch.ID)
}

// Get returns a channel the caller participates in.
func (s *Service) Get(ctx context.Context, caller Caller, channelID string) (*data.Channel, error) {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.Participant(caller.UserID); !ok {
		return nil, data.ErrForbidden
	}
	return ch, nil
}

// List returns the caller's channels, most recently active first.
func (s *Service) List(ctx context.Context, caller Caller, limit int64) ([]*data.Channel, error) {
	return s.store.ListChannels(ctx, caller.UserID, limit)
}

// Send appends a user message. The flood gate runs first and its rejection
// never reaches the store. A send into a CLOSED channel is rejected with
// ErrChannelClosed for patients; for staff it implicitly reopens the channel,
// inserting a system_reopened message before the user's message.
func (s *Service) Send(ctx context.Context, caller Caller, channelID, body string) (*data.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("empty message body: %w", data.ErrValidation)
	}
	if err := s.gate.Allow(caller.UserID); err != nil {
		return nil, err
	}

	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.Participant(caller.UserID); !ok {
		return nil, data.ErrForbidden
	}

	if ch.Status == data.StatusClosed {
		if !caller.Role.Staff() {
			return nil, data.ErrChannelClosed
		}
		if err := s.store.SetStatus(ctx, channelID, data.StatusActive, caller.UserID, s.now().UnixMilli()); err != nil {
			return nil, err
		}
		if _, err := s.appendSystem(ctx, channelID, data.SystemReopened, "Conversation reopened"); err != nil {
			return nil, err
		}
	}

	msg, err := s.store.AppendMessage(ctx, channelID, &data.Message{
		Kind:     data.KindUser,
		Body:     body,
		SenderID: caller.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.EventMessage, ChannelID: channelID, Message: msg})
	return msg, nil
}

// Close transitions ACTIVE to CLOSED. Only staff participants may close;
// closing an already-closed channel is a no-op success.
func (s *Service) Close(ctx context.Context, caller Caller, channelID string) error {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	p, ok := ch.Participant(caller.UserID)
	if !ok || !p.Role.Staff() {
		return fmt.Errorf("only staff participants may close a channel: %w", data.ErrForbidden)
	}
	if ch.Status == data.StatusClosed {
		return nil
	}

	if err := s.store.SetStatus(ctx, channelID, data.StatusClosed, caller.UserID, s.now().UnixMilli()); err != nil {
		return err
	}
	_, err = s.appendSystem(ctx, channelID, data.SystemClosed, "Conversation closed")
	return err
}

// MarkRead zeroes the caller's unread badge for the channel and records the
// caller on every other-sender message's receipt set.
func (s *Service) MarkRead(ctx context.Context, caller Caller, channelID string) error {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if _, ok := ch.Participant(caller.UserID); !ok {
		return data.ErrForbidden
	}
	if err := s.store.MarkRead(ctx, channelID, caller.UserID); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.EventRead, ChannelID: channelID, UserID: caller.UserID})
	return nil
}

// Messages pages through a channel's history.
func (s *Service) Messages(ctx context.Context, caller Caller, channelID string, limit int64, cursor int64, direction data.ListDirection) (*data.MessagePage, error) {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.Participant(caller.UserID); !ok {
		return nil, data.ErrForbidden
	}
	return s.store.ListMessages(ctx, channelID, limit, cursor, direction)
}

// Typing publishes a transient typing signal; nothing is persisted.
func (s *Service) Typing(ctx context.Context, caller Caller, channelID string) error {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if _, ok := ch.Participant(caller.UserID); !ok {
		return data.ErrForbidden
	}
	s.publish(ctx, events.Event{Type: events.EventTyping, ChannelID: channelID, UserID: caller.UserID})
	return nil
}

// TotalUnread sums the caller's badge counts across all channels.
func (s *Service) TotalUnread(ctx context.Context, caller Caller) (int, error) {
	channels, err := s.store.ListChannels(ctx, caller.UserID, 1000)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ch := range channels {
		total += ch.Unread[caller.UserID]
	}
	return total, nil
}

// appendSystem appends a sender-less lifecycle marker and publishes it.
func (s *Service) appendSystem(ctx context.Context, channelID, customType, body string) (*data.Message, error) {
	msg, err := s.store.AppendMessage(ctx, channelID, &data.Message{
		Kind:       data.KindSystem,
		Body:       body,
		CustomType: customType,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.EventMessage, ChannelID: channelID, Message: msg})
	return msg, nil
}

// publish is best-effort: a failing bus must not fail the command that
// already committed to the store. Views recover via refetch.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "channel", ev.ChannelID, "type", ev.Type, "error", err)
	}
}
