package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

// RouterConfig holds the transport settings of the router
type RouterConfig struct {
	RequestTimeout time.Duration
	RetryAfter     time.Duration // Advertised to rate limited clients
	TrustedProxies []string      // Sources whose forwarding headers set the client IP
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig, logger *zap.Logger) (*gin.Engine, error) {
	router := gin.New()
	router.Use(AccessLog(logger), gin.Recovery())

	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Create handlers
	handlers := NewAuthHandlers(authService, logger, cfg.RetryAfter)

	// Auth routes
	auth := router.Group("/")
	auth.Use(RequestTimeout(cfg.RequestTimeout))
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/revoke", handlers.Revoke)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(handlers.AuthMiddleware())
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router, nil
}
