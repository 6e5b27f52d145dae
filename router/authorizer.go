package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"balcao/controllers"

	"github.com/gin-gonic/gin"
)

// Authorizer guards the operator API with a shared key, sent as X-API-Key or
// "Authorization: Bearer <key>". An empty key leaves the routes open.
func Authorizer(apiKey string) gin.HandlerFunc {
	apiKey = strings.TrimSpace(apiKey)
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if got == "" {
			controllers.RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			controllers.RespondError(c, "sem acesso à api de operador", http.StatusForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
