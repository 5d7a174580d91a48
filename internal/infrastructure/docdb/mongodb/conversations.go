// Package mongodb provides the conversations collection implementation.
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

// ConversationsCollectionName is the name of the conversations collection.
const ConversationsCollectionName = "conversations"

// ConversationsCollection implements docdb.ConversationsCollection for MongoDB.
type ConversationsCollection struct {
	collection *mongo.Collection
}

// NewConversationsCollection creates a new conversations collection wrapper.
func NewConversationsCollection(db *mongo.Database) *ConversationsCollection {
	return &ConversationsCollection{
		collection: db.Collection(ConversationsCollectionName),
	}
}

// Create inserts a new conversation.
func (c *ConversationsCollection) Create(ctx context.Context, conversation *models.Conversation) error {
	if conversation.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	_, err := c.collection.InsertOne(ctx, conversation)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

// Get retrieves a conversation by ID. Returns nil if not found.
func (c *ConversationsCollection) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// ListByUser lists a user's conversations ordered by updatedAt descending.
func (c *ConversationsCollection) ListByUser(ctx context.Context, opts *docdb.ListConversationsOptions) ([]*models.Conversation, error) {
	filter := bson.M{"userId": opts.UserID}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	cursor, err := c.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []*models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	return conversations, nil
}

// ApplyTurn applies a post-append update to the conversation. The updatedAt
// write uses $max so the timestamp never moves backwards.
func (c *ConversationsCollection) ApplyTurn(ctx context.Context, id string, update *docdb.TurnUpdate) error {
	set := bson.M{}
	if update.LastAgent != "" {
		set["lastAgent"] = update.LastAgent
	}

	mutation := bson.M{
		"$inc": bson.M{"messageCount": update.MessageDelta},
		"$max": bson.M{"updatedAt": update.UpdatedAt},
	}
	if len(set) > 0 {
		mutation["$set"] = set
	}

	result, err := c.collection.UpdateOne(ctx, bson.M{"_id": id}, mutation)
	if err != nil {
		return fmt.Errorf("failed to apply turn update: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}

	return nil
}

// EnsureIndexes creates necessary indexes for the conversations collection.
func (c *ConversationsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "updatedAt", Value: -1},
			},
			Options: options.Index().SetName("idx_user_updated"),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: -1}},
			Options: options.Index().SetName("idx_updated_at"),
		},
	}

	_, err := c.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create conversations indexes: %w", err)
	}

	return nil
}
