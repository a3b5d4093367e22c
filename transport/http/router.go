package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the transport-level settings of the router
type RouterConfig struct {
	// AllowedOrigins lists CORS origins; "*" or an empty list allows any
	AllowedOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	// Create handlers
	handlers := NewAuthHandlers(authService)

	router.GET("/ping", handlers.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Session routes
	session := router.Group("/api/session")
	{
		session.POST("/generate_challenge", handlers.GenerateChallenge)
		session.POST("/validate_auth", handlers.ValidateAuth)
	}

	// Protected session routes
	protected := router.Group("/api/session")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/me", handlers.Me)
	}

	return router
}
