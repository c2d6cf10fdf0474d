// Package middleware holds the Gin middleware of the bridge: caller
// authentication and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/api/handlers"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// ProxyAuth authenticates callers against the configured proxy key. An
// empty configured key means open access. Credentials are taken from the
// Authorization bearer header first, then from the key query parameter;
// an empty query value is not a credential.
func ProxyAuth(cfg func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := cfg().ProxyKey
		if expected == "" {
			c.Next()
			return
		}

		if keysEqual(bearerToken(c.Request), expected) || keysEqual(c.Query("key"), expected) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "invalid or missing API key",
				Type:    "authentication_error",
			},
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// keysEqual compares a presented credential against the expected key in
// constant time. An empty candidate never matches.
func keysEqual(candidate, expected string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}
