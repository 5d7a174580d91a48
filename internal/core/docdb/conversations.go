package docdb

import (
	"context"
	"time"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// ListConversationsOptions contains options for listing conversations.
type ListConversationsOptions struct {
	UserID int64
	Limit  int64
	Skip   int64
	// ActiveOnly filters out conversations closed by administration.
	ActiveOnly bool
}

// TurnUpdate describes the conversation mutation applied after a turn's
// messages are appended.
type TurnUpdate struct {
	// MessageDelta is added to the persisted message count.
	MessageDelta int64
	// LastAgent records the agent that produced the assistant message.
	LastAgent models.AgentType
	// UpdatedAt bumps the conversation timestamp; it must never move backwards.
	UpdatedAt time.Time
}

// ConversationsCollection defines the interface for conversation persistence.
type ConversationsCollection interface {
	// Create inserts a new conversation.
	Create(ctx context.Context, conversation *models.Conversation) error

	// Get retrieves a conversation by ID. Returns nil if not found.
	Get(ctx context.Context, id string) (*models.Conversation, error)

	// ListByUser lists a user's conversations ordered by updatedAt descending.
	ListByUser(ctx context.Context, opts *ListConversationsOptions) ([]*models.Conversation, error)

	// ApplyTurn applies a post-append update to the conversation.
	ApplyTurn(ctx context.Context, id string, update *TurnUpdate) error

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
