package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/service"
)

// SetupRouter sets up the Gin router for the wallet gateway.
func SetupRouter(manager *service.Manager, auth *service.Authenticator, logger zerolog.Logger) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(manager, auth, logger)

	wallet := router.Group("/wallet")
	{
		wallet.POST("/connect", handlers.Connect)
		wallet.POST("/disconnect", handlers.Disconnect)
		wallet.POST("/switch-network", handlers.SwitchNetwork)
		wallet.GET("/status", handlers.Status)
	}

	session := router.Group("/session")
	{
		session.POST("/logout", handlers.Logout)
		session.GET("/me", SessionRequired(auth), handlers.Me)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
