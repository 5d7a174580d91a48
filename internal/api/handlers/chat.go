// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customsflow/agent-service/internal/api/dto"
	"github.com/customsflow/agent-service/internal/api/middleware"
	"github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/services/orchestrator"
)

// ChatHandler handles conversation turn requests.
type ChatHandler struct {
	orchestrator *orchestrator.Service
	turnTimeout  time.Duration
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(orch *orchestrator.Service, turnTimeout time.Duration) *ChatHandler {
	if turnTimeout <= 0 {
		turnTimeout = 120 * time.Second
	}
	return &ChatHandler{
		orchestrator: orch,
		turnTimeout:  turnTimeout,
	}
}

// Chat handles POST /conversations/chat.
// @Summary Process a conversation turn
// @Description Routes the message to specialized agents, generates an answer and persists the turn
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body dto.ChatRequest true "Chat request"
// @Success 200 {object} dto.ChatResponse "Completed turn"
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 404 {object} dto.ErrorResponse "Conversation not found"
// @Failure 504 {object} dto.ErrorResponse "Upstream timeout"
// @Security BearerAuth
// @Router /conversations/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	userID := middleware.GetUserID(c)
	if userID == 0 {
		userID = req.UserID
	} else if req.UserID != 0 && req.UserID != userID {
		middleware.HandleError(c, errors.NewForbiddenError("user id does not match token"))
		return
	}

	// A client disconnect must not abort the turn once accepted; the turn
	// keeps its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.turnTimeout)
	defer cancel()

	// include_history defaults to true when omitted.
	result, err := h.orchestrator.ProcessTurn(ctx, &orchestrator.TurnRequest{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		SkipHistory:    req.IncludeHistory != nil && !*req.IncludeHistory,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ChatResponse{
		ConversationID:    result.Conversation.ID,
		UserMessage:       dto.FromMessage(result.UserMessage),
		AssistantMessage:  dto.FromMessage(result.AssistantMessage),
		IsNewConversation: result.IsNewConversation,
	})
}
