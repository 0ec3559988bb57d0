package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/infrastructure/auth"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/interfaces/http/handler"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Setup wires the engine's middleware and routes. Webhooks and the health
// endpoint are unauthenticated; the admin surface sits behind JWT.
func Setup(
	cfg *config.Config,
	log *zap.Logger,
	jwtService *auth.JWTService,
	health *handler.HealthHandler,
	webhooks *handler.WebhookHandler,
	admin *handler.AdminHandler,
) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLog(log))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if len(cfg.HTTP.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.HTTP.TrustedProxies)
	}

	root := engine.Group("")
	health.RegisterRoutes(root)
	webhooks.RegisterRoutes(root)

	adminGroup := engine.Group("/admin")
	adminGroup.Use(middleware.JWTAuth(jwtService))
	admin.RegisterRoutes(adminGroup)

	return engine
}
