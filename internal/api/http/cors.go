package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stagecall/audition-service/internal/config"
)

// CORSMiddleware implements credentialed CORS. The request origin is echoed
// back only when it is in the configured allow-set; otherwise the primary
// origin is substituted. Never a wildcard, since credentials are allowed.
type CORSMiddleware struct {
	primary string
	allowed map[string]struct{}
}

// NewCORSMiddleware builds the middleware from config.
func NewCORSMiddleware(cfg config.CORSConfig) *CORSMiddleware {
	allowed := make(map[string]struct{}, len(cfg.ExtraOrigins)+1)
	for _, origin := range cfg.AllowedOrigins() {
		allowed[origin] = struct{}{}
	}
	return &CORSMiddleware{primary: cfg.PrimaryOrigin, allowed: allowed}
}

// Handle sets CORS headers and short-circuits preflight requests.
func (m *CORSMiddleware) Handle(c *fiber.Ctx) error {
	origin := c.Get(fiber.HeaderOrigin)
	if origin != "" {
		allowOrigin := m.primary
		if _, ok := m.allowed[origin]; ok {
			allowOrigin = origin
		}
		if allowOrigin != "" {
			c.Set(fiber.HeaderAccessControlAllowOrigin, allowOrigin)
			c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
			c.Set(fiber.HeaderVary, fiber.HeaderOrigin)
		}
	}

	if c.Method() == fiber.MethodOptions {
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET,POST,OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
		c.Set(fiber.HeaderAccessControlMaxAge, "600")
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Next()
}
