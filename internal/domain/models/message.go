// Package models contains domain models for the Customs AI Orchestration Service.
package models

import "time"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleUser represents a message from the user.
	RoleUser MessageRole = "user"
	// RoleAssistant represents a message from the assistant.
	RoleAssistant MessageRole = "assistant"
	// RoleSystem represents a system message.
	RoleSystem MessageRole = "system"
)

// Message represents a single message within a conversation. Messages are
// totally ordered by createdAt within their conversation; a user message is
// followed by exactly one assistant message once the turn completes.
type Message struct {
	ID             string                 `json:"id" bson:"_id"`
	ConversationID string                 `json:"conversationId" bson:"conversationId"`
	Role           MessageRole            `json:"role" bson:"role"`
	Content        string                 `json:"content" bson:"content"`
	AgentUsed      AgentType              `json:"agentUsed,omitempty" bson:"agentUsed,omitempty"`
	RoutingInfo    *RoutingDecision       `json:"routingInfo,omitempty" bson:"routingInfo,omitempty"`
	References     []DocumentReference    `json:"references,omitempty" bson:"references,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" bson:"createdAt"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(id, conversationID string, role MessageRole, content string) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}
