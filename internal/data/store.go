// Package data provides the channel/message models and stores.
package data

import "context"

// Store is the capability set of the channel/message store. Two variants
// exist: the Mongo-backed store used in production and the in-memory fixture
// store used by tests and local development. The variant is chosen once at
// composition-root wiring time; business logic never branches on it.
type Store interface {
	// CreateChannel persists a new channel record as-is.
	CreateChannel(ctx context.Context, ch *Channel) error

	// GetChannel returns the channel or ErrNotFound.
	GetChannel(ctx context.Context, channelID string) (*Channel, error)

	// ListChannels returns the user's channels, most recently active first.
	ListChannels(ctx context.Context, userID string, limit int64) ([]*Channel, error)

	// AppendMessage assigns the next Seq and a store-observed CreatedAt to
	// msg, persists it and updates the channel's LastMessage. For user
	// messages it also increments the unread count of every participant
	// except the sender; system messages never move badge counts. Returns
	// the stored message. Fails with ErrNotFound for an unknown channel.
	AppendMessage(ctx context.Context, channelID string, msg *Message) (*Message, error)

	// ListMessages pages through a channel's messages ordered by Seq.
	// cursor is a CreatedAt boundary in epoch milliseconds; zero means
	// absent, which yields the most recent page, newest first.
	ListMessages(ctx context.Context, channelID string, limit int64, cursor int64, direction ListDirection) (*MessagePage, error)

	// MarkRead zeroes the user's unread count for the channel and adds the
	// user to ReadBy on every message from other senders.
	MarkRead(ctx context.Context, channelID, userID string) error

	// SetStatus transitions the channel's lifecycle state, recording who
	// performed the transition and when (epoch milliseconds).
	SetStatus(ctx context.Context, channelID string, status ChannelStatus, byUserID string, at int64) error
}
