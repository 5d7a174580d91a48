package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customsflow/agent-service/internal/api/middleware"
	"github.com/customsflow/agent-service/internal/api/sse"
	"github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/services/conversation"
	"github.com/customsflow/agent-service/internal/services/progress"
)

// ProgressHandler streams pipeline progress events over SSE.
type ProgressHandler struct {
	broker            *progress.Broker
	store             conversation.Store
	heartbeatInterval time.Duration
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(broker *progress.Broker, store conversation.Store, heartbeatInterval time.Duration) *ProgressHandler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	return &ProgressHandler{
		broker:            broker,
		store:             store,
		heartbeatInterval: heartbeatInterval,
	}
}

// Stream handles GET /progress/stream/:conversationId.
// @Summary Stream turn progress
// @Description Streams the active turn's progress events as SSE, replaying events published so far; heartbeat steps keep the connection alive and carry no turn state
// @Tags Progress
// @Produce text/event-stream
// @Param conversationId path string true "Conversation ID"
// @Success 200 {string} string "SSE stream of progress events"
// @Failure 404 {object} dto.ErrorResponse "No active turn for conversation"
// @Security BearerAuth
// @Router /progress/stream/{conversationId} [get]
func (h *ProgressHandler) Stream(c *gin.Context) {
	conversationID := c.Param("conversationId")
	userID := middleware.GetUserID(c)

	// Ownership check before exposing any turn state.
	if _, err := h.store.GetConversation(c.Request.Context(), userID, conversationID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	sub, ok := h.broker.Subscribe(conversationID)
	if !ok {
		middleware.HandleError(c, errors.NewNotFoundError("active turn", conversationID))
		return
	}
	defer sub.Close()

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				_ = writer.WriteDone()
				return
			}
			if err := writer.WriteProgress(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := writer.WriteHeartbeat(conversationID); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			// Disconnect detaches the stream; the turn keeps running.
			return
		}
	}
}
