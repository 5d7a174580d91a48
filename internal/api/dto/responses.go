// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// RoutingInfo represents a routing decision in API responses.
type RoutingInfo struct {
	SelectedAgent          string  `json:"selected_agent"`
	SecondaryAgent         string  `json:"secondary_agent,omitempty"`
	Complexity             float64 `json:"complexity"`
	Reasoning              string  `json:"reasoning"`
	RequiresMultipleAgents bool    `json:"requires_multiple_agents"`
}

// Reference represents one source document in API responses.
type Reference struct {
	Source     string                 `json:"source"`
	Title      string                 `json:"title"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	AgentUsed      string                 `json:"agent_used,omitempty"`
	RoutingInfo    *RoutingInfo           `json:"routing_info,omitempty"`
	References     []Reference            `json:"references,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ChatResponse represents the outcome of a completed conversation turn.
type ChatResponse struct {
	ConversationID    string           `json:"conversation_id"`
	UserMessage       *MessageResponse `json:"user_message"`
	AssistantMessage  *MessageResponse `json:"assistant_message"`
	IsNewConversation bool             `json:"is_new_conversation"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Title        string    `json:"title"`
	MessageCount int64     `json:"message_count"`
	LastAgent    string    `json:"last_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetConversationsResponse represents the response for listing conversations.
type GetConversationsResponse struct {
	Conversations []*ConversationResponse `json:"conversations"`
	Limit         int64                   `json:"limit"`
	Offset        int64                   `json:"offset"`
}

// GetMessagesResponse represents the response for getting messages.
type GetMessagesResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Limit    int64              `json:"limit"`
	Offset   int64              `json:"offset"`
}

// FromMessage maps a domain message to its API representation.
func FromMessage(m *models.Message) *MessageResponse {
	if m == nil {
		return nil
	}

	resp := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		AgentUsed:      string(m.AgentUsed),
		CreatedAt:      m.CreatedAt,
		Metadata:       m.Metadata,
	}
	if m.RoutingInfo != nil {
		resp.RoutingInfo = &RoutingInfo{
			SelectedAgent:          string(m.RoutingInfo.SelectedAgent),
			SecondaryAgent:         string(m.RoutingInfo.SecondaryAgent),
			Complexity:             m.RoutingInfo.Complexity,
			Reasoning:              m.RoutingInfo.Reasoning,
			RequiresMultipleAgents: m.RoutingInfo.RequiresMultipleAgents,
		}
	}
	for _, ref := range m.References {
		resp.References = append(resp.References, Reference{
			Source:     ref.Source,
			Title:      ref.Title,
			Similarity: ref.Similarity,
			Metadata:   ref.Metadata,
		})
	}
	return resp
}

// FromConversation maps a domain conversation to its API representation.
func FromConversation(c *models.Conversation) *ConversationResponse {
	if c == nil {
		return nil
	}
	return &ConversationResponse{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		LastAgent:    string(c.LastAgent),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
