// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections used by the core.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and returns a Client.
func New(ctx context.Context, mongoURI string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify the connection before handing the client out.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database("carechat"),
	}, nil
}

// ChannelsCollection returns the channels collection.
func (c *Client) ChannelsCollection() *mongo.Collection {
	return c.db.Collection("channels")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// CountersCollection returns the per-channel sequence counters collection.
func (c *Client) CountersCollection() *mongo.Collection {
	return c.db.Collection("counters")
}

// UsersCollection returns the users (profile directory) collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// Unique (channel_id, seq): Seq is the ordering key and must never
	// collide within a channel, even if two appends race.
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]int{"channel_id": 1, "seq": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			// Serves cursor pagination on the created_at boundary.
			Keys: map[string]int{"channel_id": 1, "created_at": -1},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// Serves ListChannels lookups by member.
	channelsIndex := mongo.IndexModel{
		Keys: map[string]int{"participants.user_id": 1},
	}
	if _, err := c.ChannelsCollection().Indexes().CreateOne(ctx, channelsIndex); err != nil {
		return fmt.Errorf("failed to create channels index: %w", err)
	}

	usersIndex := mongo.IndexModel{
		Keys:    map[string]int{"email": 1},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.UsersCollection().Indexes().CreateOne(ctx, usersIndex); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	return nil
}
