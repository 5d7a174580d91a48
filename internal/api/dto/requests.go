// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ChatRequest represents the request body for a conversation turn.
type ChatRequest struct {
	Message        string `json:"message" binding:"required,min=1,max=8000"`
	UserID         int64  `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	// IncludeHistory controls whether prior conversation context conditions
	// routing and generation. Omitted means true.
	IncludeHistory *bool `json:"include_history"`
}

// ListQuery represents pagination query parameters.
type ListQuery struct {
	Limit  int64 `form:"limit,default=20" binding:"min=1,max=100"`
	Offset int64 `form:"offset,default=0" binding:"min=0"`
}
