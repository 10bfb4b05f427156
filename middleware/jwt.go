package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
)

const (
	UserIDKey     = "user_id"
	UserClaimsKey = "user_claims"

	// tokenQueryParam carries the token for clients that cannot set headers,
	// such as browser websockets.
	tokenQueryParam = "token"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.DataResponse{
		Status:  false,
		Message: message,
	})
}

// AuthMiddleware validates the user token and stores the user id on the
// gin context under UserIDKey.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(tokenQueryParam)
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(c, "Authorization header format must be Bearer {token}")
				return
			}
			token = parts[1]
		}
		if token == "" {
			unauthorized(c, "Authorization header is required")
			return
		}

		claims, err := utils.ParseUserToken(token, secret)
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}
		c.Set(UserIDKey, claims.ID)
		c.Set(UserClaimsKey, claims)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
