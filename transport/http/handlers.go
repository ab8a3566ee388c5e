package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/service"
)

// Handlers contains the HTTP handlers for the wallet gateway.
type Handlers struct {
	manager *service.Manager
	auth    *service.Authenticator
	logger  zerolog.Logger
}

// NewHandlers creates the gateway handlers.
func NewHandlers(manager *service.Manager, auth *service.Authenticator, logger zerolog.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		auth:    auth,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Connect handles POST /wallet/connect.
func (h *Handlers) Connect(c *gin.Context) {
	identity, err := h.manager.Connect(c.Request.Context())
	if err != nil {
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity": identity,
		"network":  core.LookupNetwork(identity.ChainID),
	})
}

// Disconnect handles POST /wallet/disconnect.
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.manager.Disconnect(c.Request.Context()); err != nil {
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

// SwitchNetwork handles POST /wallet/switch-network.
func (h *Handlers) SwitchNetwork(c *gin.Context) {
	var req struct {
		ChainID string `json:"chainId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	declined, err := h.manager.SwitchNetwork(c.Request.Context(), req.ChainID)
	if err != nil {
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"switched": !declined,
		"declined": declined,
		"network":  core.LookupNetwork(req.ChainID),
	})
}

// Status handles GET /wallet/status.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Status())
}

// Me handles GET /session/me. The session middleware has already ensured a
// valid token.
func (h *Handlers) Me(c *gin.Context) {
	cred := h.auth.Credential()
	if cred == nil || cred.Profile == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":   cred.Profile,
		"isNewUser": cred.IsNewUser,
		"expiresAt": cred.ExpiresAt,
	})
}

// Logout handles POST /session/logout.
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// connectionErrorStatus maps the module's error taxonomy onto HTTP statuses.
func connectionErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUserRejected), errors.Is(err, core.ErrNoAccounts):
		return http.StatusForbidden
	case errors.Is(err, core.ErrRequestPending), errors.Is(err, core.ErrConnectInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
