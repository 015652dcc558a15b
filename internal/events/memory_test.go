package events

import (
	"context"
	"testing"
	"time"

	"github.com/zenmed/carechat/internal/data"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	s1, err := b.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer s1.Close()
	s2, err := b.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer s2.Close()
	other, err := b.Subscribe(ctx, "c2")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer other.Close()

	ev := Event{Type: EventMessage, ChannelID: "c1", Message: &data.Message{ChannelID: "c1", Seq: 1, Body: "hi"}}
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, s := range []*Subscription{s1, s2} {
		got := recv(t, s)
		if got.Message == nil || got.Message.Seq != 1 {
			t.Fatalf("unexpected event %+v", got)
		}
	}
	select {
	case ev := <-other.C:
		t.Fatalf("subscriber of another channel received %+v", ev)
	default:
	}
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	sub.Close()
	sub.Close() // idempotent

	if _, ok := <-sub.C; ok {
		t.Fatal("expected a closed delivery channel")
	}
	// Publishing after the only subscriber left must not panic.
	if err := b.Publish(ctx, Event{Type: EventTyping, ChannelID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestMemoryBusDropsWhenSubscriberStalls(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// Nothing drains the queue: overflow past the buffer must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		if err := b.Publish(ctx, Event{Type: EventTyping, ChannelID: "c1", UserID: "u1"}); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}
	if got := len(sub.C); got != subscriberBuffer {
		t.Fatalf("expected a full queue of %d, got %d", subscriberBuffer, got)
	}
}
