package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/handler"
	"github.com/noah-isme/mural-go-api/internal/middleware"
	"github.com/noah-isme/mural-go-api/internal/observability"
	"github.com/noah-isme/mural-go-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ActivityFeedHandler  *handler.ActivityFeedHandler
	AdminActivityHandler *handler.AdminActivityHandler
	AiConfigHandler      *handler.AiConfigHandler
	AuthHandler          *handler.AuthHandler
	TutorHandler         *handler.TutorHandler
	JWTMiddleware        fiber.Handler
	HealthProbes         []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret, service.TokenIssuer)
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth", middleware.RateLimit("login", 5, time.Minute))
		deps.AuthHandler.Register(auth)
	}

	// Public board
	if deps.ActivityFeedHandler != nil {
		deps.ActivityFeedHandler.Register(api.Group("/activities"))
	}

	// Administrator surface
	admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(service.AdminRole))
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(admin.Group("/activities"))
	}
	if deps.AiConfigHandler != nil {
		deps.AiConfigHandler.Register(admin.Group("/ai-config"))
	}

	// Tutor
	if deps.TutorHandler != nil {
		deps.TutorHandler.Register(api.Group("/tutor"), middleware.RateLimit("tutor", 20, time.Minute))
	}
}
