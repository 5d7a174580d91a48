package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customsflow/agent-service/internal/api/dto"
	"github.com/customsflow/agent-service/internal/api/middleware"
	"github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/services/conversation"
)

// ConversationsHandler serves conversation listings and chat history.
type ConversationsHandler struct {
	store conversation.Store
}

// NewConversationsHandler creates a new ConversationsHandler.
func NewConversationsHandler(store conversation.Store) *ConversationsHandler {
	return &ConversationsHandler{store: store}
}

// List handles GET /conversations.
// @Summary List conversations
// @Description Returns the caller's conversations ordered by most recent activity
// @Tags Conversations
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.GetConversationsResponse "Conversations"
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Security BearerAuth
// @Router /conversations [get]
func (h *ConversationsHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	userID := middleware.GetUserID(c)
	conversations, err := h.store.ListConversations(c.Request.Context(), userID, query.Limit, query.Offset)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.GetConversationsResponse{
		Conversations: make([]*dto.ConversationResponse, 0, len(conversations)),
		Limit:         query.Limit,
		Offset:        query.Offset,
	}
	for _, conv := range conversations {
		resp.Conversations = append(resp.Conversations, dto.FromConversation(conv))
	}
	c.JSON(http.StatusOK, resp)
}

// Messages handles GET /conversations/:conversationId/messages.
// @Summary Get conversation history
// @Description Returns the conversation's messages in ascending timestamp order
// @Tags Conversations
// @Produce json
// @Param conversationId path string true "Conversation ID"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.GetMessagesResponse "Messages"
// @Failure 404 {object} dto.ErrorResponse "Conversation not found"
// @Security BearerAuth
// @Router /conversations/{conversationId}/messages [get]
func (h *ConversationsHandler) Messages(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	conversationID := c.Param("conversationId")
	userID := middleware.GetUserID(c)

	if _, err := h.store.GetConversation(c.Request.Context(), userID, conversationID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	messages, err := h.store.ListMessages(c.Request.Context(), conversationID, query.Limit, query.Offset)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.GetMessagesResponse{
		Messages: make([]*dto.MessageResponse, 0, len(messages)),
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, dto.FromMessage(m))
	}
	c.JSON(http.StatusOK, resp)
}
