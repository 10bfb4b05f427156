package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/middleware"
	"github.com/tieubaoca/edu-assistant/service"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Documents     *service.DocumentService
	Sessions      *service.SessionFactory
	Feedback      service.FeedbackService
	Activity      service.ActivityService
	WebSocket     *service.WebSocketService
	JWTSecret     string
	MaxUploadSize int64
	Logger        *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	corsHandler := NewCorsHandler()
	documentHandler := NewDocumentHandler(deps.Documents)
	uploadHandler := NewUploadHandler(deps.Documents, deps.MaxUploadSize)
	chatHandler := NewChatHandler(deps.Sessions, deps.WebSocket, deps.Logger)
	feedbackHandler := NewFeedbackHandler(deps.Feedback, deps.Activity)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))

	// Apply global middleware
	router.Use(corsHandler.CorsMiddleware)

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.JWTSecret))
	{
		apiV1.POST("/documents", uploadHandler.UploadDocumentHandler)
		apiV1.GET("/documents", documentHandler.HandleList)
		apiV1.DELETE("/documents/:filename", documentHandler.HandleDelete)
		apiV1.DELETE("/documents/hash/:hash", documentHandler.HandleDeleteByHash)
		apiV1.GET("/documents/hash/:hash/verify", documentHandler.HandleVerify)
		apiV1.POST("/context", documentHandler.HandleContext)
		apiV1.POST("/chat", chatHandler.HandleChat)
		apiV1.GET("/ws", chatHandler.HandleWebSocket)
		apiV1.POST("/feedback", feedbackHandler.HandleSubmit)
		apiV1.GET("/feedback/stats", feedbackHandler.HandleStats)
		apiV1.GET("/activity", feedbackHandler.HandleActivity)
	}
	return router
}
