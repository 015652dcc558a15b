package events

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer bounds each subscriber's queue. A slow consumer drops
// events rather than blocking the publisher; views recover via refetch.
const subscriberBuffer = 64

// MemoryBus is an in-process hub mapping channel ids to active subscriber
// queues. It backs the fixture wiring and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]chan Event
	nextID int64
}

// NewMemoryBus creates a new hub instance.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int64]chan Event)}
}

// Subscribe registers a queue for the channel. Closing the returned
// subscription unregisters it and closes its delivery channel.
func (b *MemoryBus) Subscribe(ctx context.Context, channelID string) (*Subscription, error) {
	b.mu.Lock()
	if _, ok := b.subs[channelID]; !ok {
		b.subs[channelID] = make(map[int64]chan Event)
	}
	b.nextID++
	id := b.nextID
	ch := make(chan Event, subscriberBuffer)
	b.subs[channelID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Remove and close under the write lock so Publish, which
			// sends while holding the read lock, can never hit a
			// closed channel.
			b.mu.Lock()
			if conns, ok := b.subs[channelID]; ok {
				delete(conns, id)
				if len(conns) == 0 {
					delete(b.subs, channelID)
				}
			}
			close(ch)
			b.mu.Unlock()
		})
	}

	return &Subscription{C: ch, cancel: cancel}, nil
}

// Publish delivers the event to every live subscriber of its channel.
// Delivery is non-blocking: a full subscriber queue drops the event.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.subs[ev.ChannelID] {
		select {
		case c <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "channel", ev.ChannelID, "type", ev.Type)
		}
	}
	return nil
}
