package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/middleware"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

const (
	HeaderOpenAIKey = "X-OpenAI-Api-Key"
	HeaderGeminiKey = "X-Gemini-Api-Key"
)

// sessionFrom builds the session of the authenticated user. It writes a 401
// and returns false when the request carries no user.
func sessionFrom(c *gin.Context) (service.Session, bool) {
	session, err := service.NewSession(middleware.UserID(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, types.DataResponse{
			Status:  false,
			Message: "Unauthenticated",
		})
		return service.Session{}, false
	}
	return session, true
}

// credentialsFrom reads per-user API keys sent with the request.
func credentialsFrom(c *gin.Context) service.Credentials {
	return service.Credentials{
		OpenAIKey: c.GetHeader(HeaderOpenAIKey),
		GeminiKey: c.GetHeader(HeaderGeminiKey),
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrEmbeddingFailed):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorMessage is the client-facing text of err. Only input errors echo
// their detail; everything else gets a fixed message.
func errorMessage(err error) string {
	switch status := errorStatus(err); status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return err.Error()
	case http.StatusUnprocessableEntity:
		return "Could not extract text from the document"
	case http.StatusBadGateway:
		return "The embedding service failed; check your OpenAI API key"
	case http.StatusServiceUnavailable:
		return "Document storage is unavailable, try again later"
	}
	return "Internal server error"
}

// respondError writes the error response and attaches err to the gin
// context so RequestLogger records the detail.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errorStatus(err), types.DataResponse{
		Status:  false,
		Message: errorMessage(err),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, types.DataResponse{
		Status:  false,
		Message: message,
	})
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if len(c.Errors) > 0 {
			logger.Warn("request failed",
				zap.String("path", c.FullPath()),
				zap.String("user_id", middleware.UserID(c)),
				zap.String("error", c.Errors.String()))
		}
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_id", middleware.UserID(c)),
		)
	}
}
