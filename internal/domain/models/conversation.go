// Package models contains domain models for the Customs AI Orchestration Service.
package models

import "time"

// Conversation represents a chat conversation between a user and the
// assistant. It is created on the first message of a new session and mutated
// on every appended turn; the orchestration core never hard-deletes it.
type Conversation struct {
	ID           string                 `json:"id" bson:"_id"`
	UserID       int64                  `json:"userId" bson:"userId"`
	Title        string                 `json:"title" bson:"title"`
	MessageCount int64                  `json:"messageCount" bson:"messageCount"`
	LastAgent    AgentType              `json:"lastAgent,omitempty" bson:"lastAgent,omitempty"`
	Active       bool                   `json:"active" bson:"active"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// MaxTitleRunes bounds the conversation title derived from the first message.
const MaxTitleRunes = 50

// NewConversation creates a conversation for the given user. The title is
// derived from the first message, truncated to MaxTitleRunes.
func NewConversation(id string, userID int64, firstMessage string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     DeriveTitle(firstMessage),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveTitle produces a conversation title from the first user message.
func DeriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= MaxTitleRunes {
		return message
	}
	return string(runes[:MaxTitleRunes]) + "..."
}
