package docdb

import (
	"context"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// ListMessagesOptions contains options for listing messages.
type ListMessagesOptions struct {
	ConversationID string
	Limit          int64
	Skip           int64
	OrderBy        SortOrder // Order by createdAt
}

// MessagesCollection defines the interface for message persistence.
type MessagesCollection interface {
	// Add writes a single message, keyed by its id.
	Add(ctx context.Context, message *models.Message) error

	// AddMany writes multiple messages in order. Writes are idempotent by
	// message id: re-adding an already stored message replaces it.
	AddMany(ctx context.Context, messages []*models.Message) error

	// List lists messages for a conversation with pagination and sorting.
	List(ctx context.Context, opts *ListMessagesOptions) ([]*models.Message, error)

	// CountByConversation returns the count of messages in a conversation.
	CountByConversation(ctx context.Context, conversationID string) (int64, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
