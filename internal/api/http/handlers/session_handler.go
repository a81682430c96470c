package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stagecall/audition-service/internal/api/dto"
	"github.com/stagecall/audition-service/internal/auth"
	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/service"
)

// SessionHandler exposes login, session lookup and logout endpoints.
type SessionHandler struct {
	sessions   *service.SessionService
	magicLinks *service.MagicLinkService
	cookies    *auth.CookieWriter
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *service.SessionService, magicLinks *service.MagicLinkService, cookies *auth.CookieWriter) *SessionHandler {
	return &SessionHandler{sessions: sessions, magicLinks: magicLinks, cookies: cookies}
}

// VerifyLine handles POST /auth/line/verify.
func (h *SessionHandler) VerifyLine(c *fiber.Ctx) error {
	var req dto.LineVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	session, err := h.sessions.LoginWithLineAssertion(c.Context(), req.AssertionToken)
	if err != nil {
		return err
	}

	h.cookies.SetSessionCookie(c, session.Token, h.sessions.SessionTTL())
	return c.JSON(fiber.Map{"user": dto.NewUserView(session.User)})
}

// CurrentSession handles GET /auth/session. Absence of a session is not an
// HTTP error: the response is 200 with a null user. Every successful lookup
// re-sets the cookie with a fresh token (sliding expiration).
func (h *SessionHandler) CurrentSession(c *fiber.Ctx) error {
	session, err := h.sessions.CurrentSession(c.Context(), auth.SessionCookie(c))
	if err != nil {
		return err
	}
	if session == nil {
		return c.JSON(fiber.Map{"user": nil})
	}

	h.cookies.SetSessionCookie(c, session.Token, h.sessions.SessionTTL())
	return c.JSON(fiber.Map{"user": dto.NewUserView(session.User)})
}

// Logout handles POST /auth/logout. Idempotent; always succeeds.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		h.sessions.Logout(c.Context(), principal.ID)
	}
	h.cookies.ClearSessionCookie(c)
	return c.JSON(fiber.Map{"ok": true})
}

// RequestMagicLink handles POST /auth/email/request.
func (h *SessionHandler) RequestMagicLink(c *fiber.Ctx) error {
	var req dto.MagicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	link, err := h.magicLinks.Request(c.Context(), req.Email, domain.Role(req.Role), req.RedirectURL)
	if err != nil {
		return err
	}

	return c.JSON(dto.MagicLinkResponse{
		Token:        link.Token,
		MagicLinkURL: link.MagicLinkURL,
		ExpiresAt:    link.ExpiresAt,
	})
}

// VerifyMagicLink handles POST /auth/email/verify.
func (h *SessionHandler) VerifyMagicLink(c *fiber.Ctx) error {
	var req dto.MagicLinkVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	session, err := h.magicLinks.Verify(c.Context(), req.Token)
	if err != nil {
		return err
	}

	h.cookies.SetSessionCookie(c, session.Token, h.sessions.SessionTTL())
	return c.JSON(fiber.Map{"user": dto.NewUserView(session.User)})
}

// RevokeSessions handles POST /auth/sessions/revoke (admin only).
func (h *SessionHandler) RevokeSessions(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "userId required")
	}

	version, err := h.sessions.RevokeSessions(c.Context(), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "tokenVersion": version})
}
