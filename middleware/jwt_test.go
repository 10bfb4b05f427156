package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/utils"
)

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter("s3cret")
	token, err := utils.GenerateUserToken("42", "ada", "s3cret", time.Hour)
	require.NoError(t, err)
	wrong, err := utils.GenerateUserToken("42", "ada", "other", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		code   int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + token, code: http.StatusOK, body: "42"},
		{name: "query token", query: "?token=" + token, code: http.StatusOK, body: "42"},
		{name: "missing", code: http.StatusUnauthorized},
		{name: "bad format", header: "Token " + token, code: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + wrong, code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
