package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is the persistent variant of Store, backed by the channels,
// messages and counters collections.
type MongoStore struct {
	channels *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// Collections is the set of collections a MongoStore operates on.
type Collections struct {
	Channels *mongo.Collection
	Messages *mongo.Collection
	Counters *mongo.Collection
}

// NewMongoStore returns a MongoStore over the given collections.
func NewMongoStore(c Collections) *MongoStore {
	return &MongoStore{
		channels: c.Channels,
		messages: c.Messages,
		counters: c.Counters,
		now:      time.Now,
	}
}

func (s *MongoStore) CreateChannel(ctx context.Context, ch *Channel) error {
	if ch.Unread == nil {
		ch.Unread = make(map[string]int)
	}
	if ch.CreatedAt == 0 {
		ch.CreatedAt = s.now().UnixMilli()
	}
	if _, err := s.channels.InsertOne(ctx, ch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *MongoStore) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	err := s.channels.FindOne(ctx, bson.M{"_id": channelID}).Decode(&ch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find channel: %w", err)
	}
	return &ch, nil
}

func (s *MongoStore) ListChannels(ctx context.Context, userID string, limit int64) ([]*Channel, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		// Most recently active first; channels without a last message
		// (null sorts last on descending) trail by creation time.
		SetSort(bson.D{{Key: "last_message.created_at", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.channels.Find(ctx, bson.M{"participants.user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer cursor.Close(ctx)

	var channels []*Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	return channels, nil
}

// nextSeq atomically allocates the next sequence number for a channel using
// a counter document and $inc.
func (s *MongoStore) nextSeq(ctx context.Context, channelID string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": channelID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocate seq: %w", err)
	}
	return doc.Seq, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, channelID string, msg *Message) (*Message, error) {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	seq, err := s.nextSeq(ctx, channelID)
	if err != nil {
		return nil, err
	}

	stored := *msg
	stored.ChannelID = channelID
	stored.Seq = seq
	stored.CreatedAt = s.now().UnixMilli()
	// Keep (Seq, CreatedAt) mutually ordered even if the clock steps back.
	if ch.LastMessage != nil && stored.CreatedAt < ch.LastMessage.CreatedAt {
		stored.CreatedAt = ch.LastMessage.CreatedAt
	}

	if _, err := s.messages.InsertOne(ctx, &stored); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Update the denormalized preview and bump unread for non-senders in a
	// single channel update. Lifecycle markers never move badge counts.
	update := bson.M{"last_message": &stored}
	inc := bson.M{}
	if stored.Kind != KindSystem {
		for _, p := range ch.Participants {
			if p.UserID != stored.SenderID {
				inc["unread."+p.UserID] = 1
			}
		}
	}
	mods := bson.M{"$set": update}
	if len(inc) > 0 {
		mods["$inc"] = inc
	}
	if _, err := s.channels.UpdateOne(ctx, bson.M{"_id": channelID}, mods); err != nil {
		return nil, fmt.Errorf("update channel preview: %w", err)
	}

	return &stored, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, channelID string, limit int64, cursor int64, direction ListDirection) (*MessagePage, error) {
	if _, err := s.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	filter := bson.M{"channel_id": channelID}
	sort := bson.D{{Key: "seq", Value: -1}}
	switch {
	case cursor == 0:
		// Most recent page, newest first.
	case direction == DirectionNewer:
		filter["created_at"] = bson.M{"$gt": cursor}
		sort = bson.D{{Key: "seq", Value: 1}}
	default:
		filter["created_at"] = bson.M{"$lt": cursor}
	}

	// Fetch one past the limit so HasMore reflects the match count before
	// truncation.
	opts := options.Find().SetSort(sort).SetLimit(limit + 1)
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	var messages []*Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	hasMore := int64(len(messages)) > limit
	if hasMore {
		messages = messages[:limit]
	}
	return &MessagePage{Messages: messages, HasMore: hasMore}, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, channelID, userID string) error {
	res, err := s.channels.UpdateOne(ctx,
		bson.M{"_id": channelID},
		bson.M{"$set": bson.M{"unread." + userID: 0}},
	)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	// Union the reader into ReadBy on every message from other senders.
	_, err = s.messages.UpdateMany(ctx,
		bson.M{"channel_id": channelID, "sender_id": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	// Keep the denormalized preview's receipt state in step.
	_, err = s.channels.UpdateOne(ctx,
		bson.M{"_id": channelID, "last_message.sender_id": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"last_message.read_by": userID}},
	)
	if err != nil {
		return fmt.Errorf("mark preview read: %w", err)
	}
	return nil
}

func (s *MongoStore) SetStatus(ctx context.Context, channelID string, status ChannelStatus, byUserID string, at int64) error {
	set := bson.M{"status": status}
	switch status {
	case StatusClosed:
		set["meta.closed_at"] = at
		set["meta.closed_by"] = byUserID
	case StatusActive:
		set["meta.reopened_at"] = at
		set["meta.reopened_by"] = byUserID
	}

	res, err := s.channels.UpdateOne(ctx, bson.M{"_id": channelID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
