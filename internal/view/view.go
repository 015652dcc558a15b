// Package view reconciles the asynchronous event stream with local channel
// state: it merges message events without duplicates or reordering, applies
// read receipts, tracks transient typing signals and owns the scroll-pinning
// policy for new arrivals.
package view

import (
	"sort"
	"sync"
	"time"

	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/events"
)

// typingTTL is how long a typing flag stays up without a fresh signal.
const typingTTL = 3 * time.Second

// Notifier is the notification port the view publishes UI-facing effects to.
// The core never reaches into ambient globals; the owning caller supplies an
// implementation (or nil to ignore).
type Notifier interface {
	// ScrollToBottom asks the UI to reveal the newest message.
	ScrollToBottom()
	// ShowNewMessage surfaces the non-blocking "new message" indicator.
	ShowNewMessage()
	// HideNewMessage dismisses the indicator.
	HideNewMessage()
}

// ChannelView is the local, per-channel state owned by a single logical
// viewer. It is mutated from two producers — direct command results and the
// event stream — and converges to Seq-ascending order regardless of arrival
// interleaving.
type ChannelView struct {
	mu sync.Mutex

	self      string
	channelID string

	bySeq    map[int64]*data.Message
	messages []*data.Message // always sorted by Seq ascending

	typing map[string]time.Time // user id -> expiry

	pinned     bool // viewer is at the bottom of the message list
	pendingNew bool // unseen arrival while scrolled up

	notifier Notifier
	now      func() time.Time
}

// NewChannelView returns an empty view for the given viewer and channel.
// The viewer starts pinned to the bottom.
func NewChannelView(self, channelID string, notifier Notifier) *ChannelView {
	return &ChannelView{
		self:      self,
		channelID: channelID,
		bySeq:     make(map[int64]*data.Message),
		typing:    make(map[string]time.Time),
		pinned:    true,
		notifier:  notifier,
		now:       time.Now,
	}
}

// SetClock overrides the view's clock. Intended for tests.
func (v *ChannelView) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

// Load merges a page of fetched messages. Used for the initial fill and for
// gap recovery after a resubscribe; duplicates with already-known messages
// are discarded, so calling it at any time is safe.
func (v *ChannelView) Load(msgs []*data.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range msgs {
		v.insert(m)
	}
}

// Apply merges one stream event. Handlers are non-blocking and idempotent
// under duplicate delivery.
func (v *ChannelView) Apply(ev events.Event) {
	switch ev.Type {
	case events.EventMessage:
		if ev.Message != nil {
			v.ApplyMessage(ev.Message)
		}
	case events.EventRead:
		v.ApplyRead(ev.UserID)
	case events.EventTyping:
		v.ApplyTyping(ev.UserID)
	}
}

// ApplyMessage merges one message, deduplicating by Seq: the sender's own
// direct-call path may have inserted it already. New arrivals either
// auto-reveal (viewer pinned) or raise the new-message indicator.
func (v *ChannelView) ApplyMessage(m *data.Message) {
	v.mu.Lock()
	inserted := v.insert(m)
	pinned := v.pinned
	if inserted && !pinned {
		v.pendingNew = true
	}
	n := v.notifier
	v.mu.Unlock()

	if !inserted || n == nil {
		return
	}
	if pinned {
		n.ScrollToBottom()
	} else {
		n.ShowNewMessage()
	}
}

// insert adds the message in Seq order; returns false for duplicates.
// Caller holds the lock.
func (v *ChannelView) insert(m *data.Message) bool {
	if _, ok := v.bySeq[m.Seq]; ok {
		return false
	}
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	v.bySeq[cp.Seq] = &cp

	// Arrival order is not display order: insert in position by Seq.
	i := sort.Search(len(v.messages), func(i int) bool { return v.messages[i].Seq > cp.Seq })
	v.messages = append(v.messages, nil)
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = &cp
	return true
}

// ApplyRead unions the reporting user into the receipt set of every known
// message from other senders. Receipt sets only ever grow.
func (v *ChannelView) ApplyRead(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.messages {
		if m.SenderID != userID && !m.ReadByUser(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
}

// ApplyTyping raises the typing flag for a peer; each signal resets the
// expiry. Self signals are ignored.
func (v *ChannelView) ApplyTyping(userID string) {
	if userID == "" || userID == v.self {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typing[userID] = v.now().Add(typingTTL)
}

// TypingUsers returns the peers whose typing flag has not expired.
func (v *ChannelView) TypingUsers() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	var out []string
	for id, until := range v.typing {
		if until.After(now) {
			out = append(out, id)
		} else {
			delete(v.typing, id)
		}
	}
	sort.Strings(out)
	return out
}

// SetPinned records whether the viewer is scrolled to the bottom. Scrolling
// back down dismisses any pending indicator.
func (v *ChannelView) SetPinned(pinned bool) {
	v.mu.Lock()
	v.pinned = pinned
	dismiss := pinned && v.pendingNew
	if dismiss {
		v.pendingNew = false
	}
	n := v.notifier
	v.mu.Unlock()

	if dismiss && n != nil {
		n.HideNewMessage()
	}
}

// JumpToLatest is the indicator interaction: scroll to bottom and dismiss.
func (v *ChannelView) JumpToLatest() {
	v.mu.Lock()
	v.pinned = true
	v.pendingNew = false
	n := v.notifier
	v.mu.Unlock()

	if n != nil {
		n.HideNewMessage()
		n.ScrollToBottom()
	}
}

// HasPendingNew reports whether the new-message indicator is up.
func (v *ChannelView) HasPendingNew() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingNew
}

// Messages returns a snapshot of the message list, Seq ascending.
func (v *ChannelView) Messages() []*data.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*data.Message, 0, len(v.messages))
	for _, m := range v.messages {
		cp := *m
		cp.ReadBy = append([]string(nil), m.ReadBy...)
		out = append(out, &cp)
	}
	return out
}

// ReadByPeer reports whether a message authored by the viewer has been
// acknowledged by the given peer: the per-message read marker.
func (v *ChannelView) ReadByPeer(seq int64, peerID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.bySeq[seq]
	if !ok {
		return false
	}
	return m.ReadByUser(peerID)
}
