package data

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory fixture variant of Store. It is safe for
// concurrent use and keeps the same semantics as the Mongo store: monotonic
// gapless Seq per channel, non-decreasing CreatedAt, unread accounting on
// append.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string]*Channel
	messages map[string][]*Message

	// now is swappable so tests control timestamps.
	now func() time.Time
}

// NewMemoryStore returns an empty fixture store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string]*Channel),
		messages: make(map[string][]*Message),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) CreateChannel(ctx context.Context, ch *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ch
	cp.Participants = append([]Participant(nil), ch.Participants...)
	if cp.Unread == nil {
		cp.Unread = make(map[string]int)
	} else {
		u := make(map[string]int, len(ch.Unread))
		for k, v := range ch.Unread {
			u[k] = v
		}
		cp.Unread = u
	}
	if cp.CreatedAt == 0 {
		cp.CreatedAt = s.now().UnixMilli()
	}
	s.channels[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChannel(ch), nil
}

func (s *MemoryStore) ListChannels(ctx context.Context, userID string, limit int64) ([]*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Channel
	for _, ch := range s.channels {
		if _, ok := ch.Participant(userID); ok {
			out = append(out, cloneChannel(ch))
		}
	}
	// Most recently active first; channels without messages sort by creation.
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]) > lastActivity(out[j])
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastActivity(ch *Channel) int64 {
	if ch.LastMessage != nil {
		return ch.LastMessage.CreatedAt
	}
	return ch.CreatedAt
}

func (s *MemoryStore) AppendMessage(ctx context.Context, channelID string, msg *Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}

	msgs := s.messages[channelID]

	stored := *msg
	stored.ChannelID = channelID
	stored.Seq = int64(len(msgs)) + 1
	stored.CreatedAt = s.now().UnixMilli()
	// Keep (Seq, CreatedAt) mutually ordered even if the clock steps back.
	if n := len(msgs); n > 0 && stored.CreatedAt < msgs[n-1].CreatedAt {
		stored.CreatedAt = msgs[n-1].CreatedAt
	}
	stored.ReadBy = append([]string(nil), msg.ReadBy...)

	s.messages[channelID] = append(msgs, &stored)

	last := stored
	ch.LastMessage = &last
	// Lifecycle markers update the preview but never the badge counts.
	if stored.Kind != KindSystem {
		for _, p := range ch.Participants {
			if p.UserID != stored.SenderID {
				ch.Unread[p.UserID]++
			}
		}
	}

	out := stored
	out.ReadBy = append([]string(nil), stored.ReadBy...)
	return &out, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, channelID string, limit int64, cursor int64, direction ListDirection) (*MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = 50
	}

	msgs := s.messages[channelID]

	var matched []*Message
	switch {
	case cursor == 0:
		// Most recent page, newest first.
		matched = append(matched, msgs...)
		reverseMessages(matched)
	case direction == DirectionNewer:
		for _, m := range msgs {
			if m.CreatedAt > cursor {
				matched = append(matched, m)
			}
		}
	default:
		for _, m := range msgs {
			if m.CreatedAt < cursor {
				matched = append(matched, m)
			}
		}
		reverseMessages(matched)
	}

	hasMore := int64(len(matched)) > limit
	if hasMore {
		matched = matched[:limit]
	}

	page := &MessagePage{HasMore: hasMore}
	for _, m := range matched {
		cp := *m
		cp.ReadBy = append([]string(nil), m.ReadBy...)
		page.Messages = append(page.Messages, &cp)
	}
	return page, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.Unread[userID] = 0

	for _, m := range s.messages[channelID] {
		if m.SenderID != userID && !m.ReadByUser(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	if ch.LastMessage != nil && ch.LastMessage.SenderID != userID && !ch.LastMessage.ReadByUser(userID) {
		ch.LastMessage.ReadBy = append(ch.LastMessage.ReadBy, userID)
	}
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, channelID string, status ChannelStatus, byUserID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.Status = status
	switch status {
	case StatusClosed:
		ch.Meta.ClosedAt = at
		ch.Meta.ClosedBy = byUserID
	case StatusActive:
		ch.Meta.ReopenedAt = at
		ch.Meta.ReopenedBy = byUserID
	}
	return nil
}

func cloneChannel(ch *Channel) *Channel {
	cp := *ch
	cp.Participants = append([]Participant(nil), ch.Participants...)
	cp.Unread = make(map[string]int, len(ch.Unread))
	for k, v := range ch.Unread {
		cp.Unread[k] = v
	}
	if ch.LastMessage != nil {
		lm := *ch.LastMessage
		lm.ReadBy = append([]string(nil), ch.LastMessage.ReadBy...)
		cp.LastMessage = &lm
	}
	return &cp
}

func reverseMessages(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
