package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "audition_auth"

// CookieWriter writes and clears the session cookie with environment-appropriate
// flags. Pure transport; validation lives in the middleware.
type CookieWriter struct {
	secure bool
}

// NewCookieWriter builds a writer. secure should be false only in the
// designated local-development environment.
func NewCookieWriter(secure bool) *CookieWriter {
	return &CookieWriter{secure: secure}
}

// SetSessionCookie attaches the token as an HTTP-only cookie.
func (w *CookieWriter) SetSessionCookie(c *fiber.Ctx, token string, maxAge time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HTTPOnly: true,
		Secure:   w.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSessionCookie expires the cookie immediately.
func (w *CookieWriter) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   w.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SessionCookie reads the raw token from the request, empty when absent.
func SessionCookie(c *fiber.Ctx) string {
	return c.Cookies(SessionCookieName)
}
