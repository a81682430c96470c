package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagecall/audition-service/internal/api/http/handlers"
	"github.com/stagecall/audition-service/internal/auth"
	"github.com/stagecall/audition-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Sessions    *handlers.SessionHandler
	UserContext *auth.UserContextMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authGroup := app.Group("/auth", cfg.UserContext.Handle)
	authGroup.Post("/line/verify", cfg.Sessions.VerifyLine)
	authGroup.Get("/session", cfg.Sessions.CurrentSession)
	authGroup.Post("/logout", cfg.Sessions.Logout)

	authGroup.Post("/email/request", cfg.Sessions.RequestMagicLink)
	authGroup.Post("/email/verify", cfg.Sessions.VerifyMagicLink)

	authGroup.Post("/sessions/revoke",
		auth.RequireAuthenticated(),
		auth.RequireAnyRole(domain.RoleAdmin),
		cfg.Sessions.RevokeSessions)
}
