// Package mongodb provides the messages collection implementation.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/customsflow/agent-service/internal/core/docdb"
	"github.com/customsflow/agent-service/internal/domain/models"
)

// MessagesCollectionName is the name of the messages collection.
const MessagesCollectionName = "messages"

// MessagesCollection implements docdb.MessagesCollection for MongoDB.
type MessagesCollection struct {
	collection *mongo.Collection
}

// NewMessagesCollection creates a new messages collection wrapper.
func NewMessagesCollection(db *mongo.Database) *MessagesCollection {
	return &MessagesCollection{
		collection: db.Collection(MessagesCollectionName),
	}
}

// Add writes a single message, keyed by its id.
func (c *MessagesCollection) Add(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	opts := options.Replace().SetUpsert(true)
	_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": message.ID}, message, opts)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// AddMany writes multiple messages preserving order. Writes are keyed by
// message id, so retrying an append that partially landed cannot fail on the
// messages the first attempt already stored.
func (c *MessagesCollection) AddMany(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ops := make([]mongo.WriteModel, 0, len(messages))
	for _, m := range messages {
		if m.ID == "" {
			return fmt.Errorf("message ID is required")
		}
		ops = append(ops, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": m.ID}).
			SetReplacement(m).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(true)
	if _, err := c.collection.BulkWrite(ctx, ops, opts); err != nil {
		return fmt.Errorf("failed to write messages: %w", err)
	}

	return nil
}

// List lists messages for a conversation with pagination and sorting.
func (c *MessagesCollection) List(ctx context.Context, opts *docdb.ListMessagesOptions) ([]*models.Message, error) {
	filter := bson.M{"conversationId": opts.ConversationID}

	order := 1
	if opts.OrderBy == docdb.SortOrderDesc {
		order = -1
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	cursor, err := c.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

// CountByConversation returns the count of messages in a conversation.
func (c *MessagesCollection) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	count, err := c.collection.CountDocuments(ctx, bson.M{"conversationId": conversationID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// EnsureIndexes creates necessary indexes for the messages collection.
func (c *MessagesCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversationId", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("idx_conversation_created"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_created_at"),
		},
	}

	_, err := c.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}

	return nil
}
