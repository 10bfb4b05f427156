package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

type ChatHandler struct {
	sessions  *service.SessionFactory
	websocket *service.WebSocketService
	logger    *zap.Logger
}

func NewChatHandler(sessions *service.SessionFactory, websocket *service.WebSocketService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		sessions:  sessions,
		websocket: websocket,
		logger:    logger,
	}
}

func (h *ChatHandler) assistant(c *gin.Context) (*service.Assistant, bool) {
	session, ok := sessionFrom(c)
	if !ok {
		return nil, false
	}
	assistant, err := h.sessions.Get(session.UserID, credentialsFrom(c))
	if err != nil {
		h.logger.Warn("failed to build assistant", zap.String("user_id", session.UserID), zap.Error(err))
		respondError(c, err)
		return nil, false
	}
	return assistant, true
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	var chatRequest types.ChatRequest
	if err := c.ShouldBindJSON(&chatRequest); err != nil || len(chatRequest.Messages) == 0 {
		badRequest(c, "Invalid request body")
		return
	}
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}

	response, err := assistant.Chat.Chat(c.Request.Context(), chatRequest.Messages)
	if err != nil {
		h.logger.Error("chat failed", zap.String("user_id", assistant.Session.UserID), zap.Error(err))
		c.JSON(http.StatusBadGateway, types.DataResponse{
			Status:  false,
			Message: "Failed to generate an answer",
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data: types.ChatResponse{
			Message: response,
		},
	})
}

func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}
	h.websocket.HandleChat(c.Writer, c.Request, assistant.Chat)
}
