package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stagecall/audition-service/internal/domain"
	apperrors "github.com/stagecall/audition-service/pkg/util"
)

// RequireAuthenticated rejects anonymous requests with 401.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireProvider ensures the session was issued through the given provider.
func RequireProvider(provider domain.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Provider != provider {
			return apperrors.NewForbidden("session provider not allowed")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the principal holds at least one of the allowed
// roles. With no roles given it only requires authentication.
func RequireAnyRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		for _, role := range principal.Roles {
			if _, exists := allowedSet[role]; exists {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("insufficient role")
	}
}
