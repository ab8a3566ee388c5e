package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/service"
)

// SessionRequired guards routes behind a valid session credential. Every
// guarded request passes through EnsureValidToken, which refreshes or
// re-logs-in as needed before the handler runs.
func SessionRequired(auth *service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.EnsureValidToken(c.Request.Context())
		if err != nil {
			switch {
			case errors.Is(err, core.ErrAuthenticationRequired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			case errors.Is(err, core.ErrBackendUnavailable), errors.Is(err, core.ErrTimeout):
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity backend unavailable"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			}
			return
		}

		c.Set("sessionToken", token)
		c.Next()
	}
}
