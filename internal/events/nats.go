package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// subjectPrefix scopes all channel events under one NATS namespace; the
// channel id is the final token.
const subjectPrefix = "carechat.channel."

// NATSBus delivers channel events over NATS subjects, one subject per
// channel, with JSON payloads. Reconnection is the transport's concern:
// nats.go resubscribes automatically, and the reconciler tolerates a fresh
// feed at any time.
type NATSBus struct {
	nc *nats.Conn
}

// NewNATSBus returns a bus over an established connection. The caller owns
// the connection's lifecycle.
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(subjectPrefix+ev.ChannelID, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, channelID string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)

	var mu sync.Mutex
	closed := false

	sub, err := b.nc.Subscribe(subjectPrefix+channelID, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping undecodable event", "channel", channelID, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "channel", channelID, "type", ev.Type)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}

	return &Subscription{C: ch, cancel: cancel}, nil
}
