package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
)

// Auth returns shared-token authentication middleware.
//
// Supports two header styles:
//
//	<headerName>: <token>          (default X-API-Token)
//	Authorization: Bearer <token>
//
// An empty token disables authentication (open access).
func Auth(token, headerName string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	if headerName == "" {
		headerName = "X-API-Token"
	}

	return func(c *gin.Context) {
		presented := extractToken(c, headerName)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Fail(&models.ErrorDetail{
				Code:    models.ErrCodeUnauthorized,
				Message: "missing token: provide " + headerName + " header or Authorization: Bearer <token>",
			}))
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Fail(&models.ErrorDetail{
				Code:    models.ErrCodeUnauthorized,
				Message: "invalid token",
			}))
			return
		}
		c.Set("client_token", presented)
		c.Next()
	}
}

// extractToken tries the configured header first, then Authorization: Bearer.
func extractToken(c *gin.Context, headerName string) string {
	if tok := c.GetHeader(headerName); tok != "" {
		return tok
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
