package view

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/events"
	"github.com/zenmed/carechat/internal/flood"
)

// fakeNotifier records effect calls; safe for the pump goroutine.
type fakeNotifier struct {
	mu      sync.Mutex
	scrolls int
	shows   int
	hides   int
}

func (n *fakeNotifier) ScrollToBottom() { n.mu.Lock(); n.scrolls++; n.mu.Unlock() }
func (n *fakeNotifier) ShowNewMessage() { n.mu.Lock(); n.shows++; n.mu.Unlock() }
func (n *fakeNotifier) HideNewMessage() { n.mu.Lock(); n.hides++; n.mu.Unlock() }

func (n *fakeNotifier) counts() (int, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scrolls, n.shows, n.hides
}

func msg(seq int64, sender, body string) *data.Message {
	return &data.Message{
		ChannelID: "c1",
		Seq:       seq,
		Kind:      data.KindUser,
		SenderID:  sender,
		Body:      body,
		CreatedAt: seq * 1000,
	}
}

func seqs(msgs []*data.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}

func TestViewDeduplicatesDeliveries(t *testing.T) {
	v := NewChannelView("me", "c1", nil)

	// The sender's direct result and several stream redeliveries of the
	// same message must collapse to one copy.
	m := msg(1, "me", "hello")
	for i := 0; i < 4; i++ {
		v.ApplyMessage(m)
	}
	v.Load([]*data.Message{m})

	got := v.Messages()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Seq != 1 || got[0].Body != "hello" {
		t.Fatalf("unexpected message %+v", got[0])
	}
}

func TestViewOrderIndependentOfArrival(t *testing.T) {
	arrivals := [][]int64{
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1},
		{3, 1, 5, 2, 4},
	}
	for _, order := range arrivals {
		v := NewChannelView("me", "c1", nil)
		for _, s := range order {
			v.ApplyMessage(msg(s, "peer", "x"))
		}
		got := seqs(v.Messages())
		for i, s := range got {
			if s != int64(i)+1 {
				t.Fatalf("arrival order %v produced display order %v", order, got)
			}
		}
	}
}

func TestViewLoadMergesWithStream(t *testing.T) {
	v := NewChannelView("me", "c1", nil)

	// Stream events race the initial page fetch; the merge keeps one copy
	// of the overlap and all of the rest.
	v.ApplyMessage(msg(4, "peer", "live"))
	v.ApplyMessage(msg(5, "peer", "live"))
	v.Load([]*data.Message{msg(1, "peer", "old"), msg(2, "me", "old"), msg(3, "peer", "old"), msg(4, "peer", "old")})

	got := seqs(v.Messages())
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestViewReadReceipts(t *testing.T) {
	v := NewChannelView("me", "c1", nil)
	v.Load([]*data.Message{msg(1, "me", "hi"), msg(2, "peer", "hey"), msg(3, "me", "news?")})

	if v.ReadByPeer(1, "peer") {
		t.Fatal("no receipt expected before the peer reads")
	}

	v.Apply(events.Event{Type: events.EventRead, ChannelID: "c1", UserID: "peer"})
	// Duplicate receipt events must not double-record.
	v.Apply(events.Event{Type: events.EventRead, ChannelID: "c1", UserID: "peer"})

	for _, seq := range []int64{1, 3} {
		if !v.ReadByPeer(seq, "peer") {
			t.Fatalf("message %d should carry the peer receipt", seq)
		}
	}
	// The peer's own message gains nothing.
	if v.ReadByPeer(2, "peer") {
		t.Fatal("sender must not be stamped on their own message")
	}
	for _, m := range v.Messages() {
		if m.SenderID != "peer" && len(m.ReadBy) != 1 {
			t.Fatalf("message %d has %d receipts, expected 1", m.Seq, len(m.ReadBy))
		}
	}

	// Messages merged after the receipt stay unstamped until the next event.
	v.ApplyMessage(msg(4, "me", "later"))
	if v.ReadByPeer(4, "peer") {
		t.Fatal("a later message cannot be pre-acknowledged")
	}
}

func TestViewTypingExpiry(t *testing.T) {
	v := NewChannelView("me", "c1", nil)
	base := time.UnixMilli(0)
	now := base
	v.SetClock(func() time.Time { return now })

	v.ApplyTyping("me") // ignored
	v.ApplyTyping("peer")
	if got := v.TypingUsers(); len(got) != 1 || got[0] != "peer" {
		t.Fatalf("expected [peer], got %v", got)
	}

	// A fresh signal pushes the expiry out.
	now = base.Add(2 * time.Second)
	v.ApplyTyping("peer")
	now = base.Add(4 * time.Second)
	if got := v.TypingUsers(); len(got) != 1 {
		t.Fatalf("refreshed flag should still be up, got %v", got)
	}

	// Silence past the expiry drops the flag without any further event.
	now = base.Add(6 * time.Second)
	if got := v.TypingUsers(); len(got) != 0 {
		t.Fatalf("expected expiry after silence, got %v", got)
	}
}

func TestViewScrollPolicyPinned(t *testing.T) {
	n := &fakeNotifier{}
	v := NewChannelView("me", "c1", n)

	v.ApplyMessage(msg(1, "peer", "hi"))
	scrolls, shows, _ := n.counts()
	if scrolls != 1 || shows != 0 {
		t.Fatalf("pinned arrival should scroll, got scrolls=%d shows=%d", scrolls, shows)
	}
	if v.HasPendingNew() {
		t.Fatal("no indicator while pinned")
	}

	// A duplicate delivery must not fire effects again.
	v.ApplyMessage(msg(1, "peer", "hi"))
	if scrolls, _, _ := n.counts(); scrolls != 1 {
		t.Fatalf("duplicate delivery scrolled again: %d", scrolls)
	}
}

func TestViewScrollPolicyScrolledUp(t *testing.T) {
	n := &fakeNotifier{}
	v := NewChannelView("me", "c1", n)
	v.SetPinned(false)

	v.ApplyMessage(msg(1, "peer", "hi"))
	v.ApplyMessage(msg(2, "peer", "still there?"))

	scrolls, shows, _ := n.counts()
	if scrolls != 0 {
		t.Fatal("arrivals while scrolled up must not force a scroll")
	}
	if shows != 2 || !v.HasPendingNew() {
		t.Fatalf("expected indicator, shows=%d pending=%v", shows, v.HasPendingNew())
	}

	// Scrolling back down dismisses it.
	v.SetPinned(true)
	if _, _, hides := n.counts(); hides != 1 {
		t.Fatalf("expected one dismiss, got %d", hides)
	}
	if v.HasPendingNew() {
		t.Fatal("indicator should be down after returning to bottom")
	}
}

func TestViewJumpToLatest(t *testing.T) {
	n := &fakeNotifier{}
	v := NewChannelView("me", "c1", n)
	v.SetPinned(false)
	v.ApplyMessage(msg(1, "peer", "hi"))

	v.JumpToLatest()
	scrolls, _, hides := n.counts()
	if scrolls != 1 || hides != 1 {
		t.Fatalf("expected scroll+dismiss, got scrolls=%d hides=%d", scrolls, hides)
	}
	if v.HasPendingNew() {
		t.Fatal("indicator should be down after jump")
	}

	// Back at the bottom, the next arrival auto-reveals again.
	v.ApplyMessage(msg(2, "peer", "welcome back"))
	if scrolls, _, _ := n.counts(); scrolls != 2 {
		t.Fatalf("expected auto-scroll after jump, got %d", scrolls)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSessionAttachSwitchesFeeds(t *testing.T) {
	bus := events.NewMemoryBus()
	s := NewSession("me", bus, nil, nil)
	defer s.Close()
	ctx := context.Background()

	v1, err := s.Attach(ctx, "c1")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := bus.Publish(ctx, events.Event{Type: events.EventMessage, ChannelID: "c1", Message: msg(1, "peer", "hi")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitFor(t, func() bool { return len(v1.Messages()) == 1 })

	// Attaching elsewhere replaces the feed: later c1 traffic must not
	// reach the abandoned view.
	v2, err := s.Attach(ctx, "c2")
	if err != nil {
		t.Fatalf("second Attach failed: %v", err)
	}
	if s.View() != v2 {
		t.Fatal("View should return the active view")
	}

	_ = bus.Publish(ctx, events.Event{Type: events.EventMessage, ChannelID: "c1", Message: msg(2, "peer", "ghost")})
	_ = bus.Publish(ctx, events.Event{Type: events.EventMessage, ChannelID: "c2", Message: msg(1, "peer", "hello")})
	waitFor(t, func() bool { return len(v2.Messages()) == 1 })

	if n := len(v1.Messages()); n != 1 {
		t.Fatalf("detached view received traffic: %d messages", n)
	}
}

func TestSessionCloseClearsFloodState(t *testing.T) {
	bus := events.NewMemoryBus()
	gate := flood.NewGate(1, time.Hour, time.Hour, time.Hour)
	defer gate.Stop()

	s := NewSession("me", bus, gate, nil)
	if _, err := s.Attach(context.Background(), "c1"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	_ = gate.Allow("me")
	if err := gate.Allow("me"); err == nil {
		t.Fatal("second attempt should have tripped the gate")
	}

	s.Close()
	if s.View() != nil {
		t.Fatal("closed session should have no view")
	}
	if err := gate.Allow("me"); err != nil {
		t.Fatalf("close must clear the viewer's lock, got %v", err)
	}
}
