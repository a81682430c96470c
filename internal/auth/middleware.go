package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/kv"
	"github.com/stagecall/audition-service/internal/repository"
)

const principalKey = "auth_principal"

// Principal is the authenticated identity attached to a request. Its absence
// is the anonymous state, not an error.
type Principal struct {
	ID           string
	Roles        []domain.Role
	Provider     domain.Provider
	TokenVersion int
}

// HasRole reports membership in the principal's role set.
func (p *Principal) HasRole(role domain.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserContextMiddleware decodes the session cookie on every request and
// attaches a Principal when, and only when, the token verifies, the user row
// is active and the token version matches. It never aborts the request;
// route guards turn absence into 401/403.
type UserContextMiddleware struct {
	tokens   *TokenManager
	users    repository.UserRepository
	cache    kv.Store
	cacheTTL time.Duration
	secret   string
	logger   *zap.Logger
}

// NewUserContextMiddleware constructs middleware. cache may be nil to disable
// the lookup cache.
func NewUserContextMiddleware(tokens *TokenManager, users repository.UserRepository, cache kv.Store, cacheTTL time.Duration, secret string, logger *zap.Logger) *UserContextMiddleware {
	return &UserContextMiddleware{
		tokens:   tokens,
		users:    users,
		cache:    cache,
		cacheTTL: cacheTTL,
		secret:   secret,
		logger:   logger,
	}
}

// Handle attaches the principal and always continues the chain.
func (m *UserContextMiddleware) Handle(c *fiber.Ctx) error {
	token := SessionCookie(c)
	if token == "" {
		return c.Next()
	}

	claims, err := m.tokens.Verify(token)
	if err != nil {
		m.logger.Debug("session token rejected", zap.Error(err))
		return c.Next()
	}

	user, err := m.lookupUser(c.Context(), token, claims.Subject)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			m.logger.Warn("session user lookup failed", zap.Error(err))
		}
		return c.Next()
	}

	// A version mismatch means the server force-invalidated outstanding
	// tokens; treated exactly like an expired token.
	if !user.Active || user.TokenVersion != claims.TokenVersion {
		m.logger.Debug("stale session token",
			zap.String("user_id", user.ID),
			zap.Int("token_version", claims.TokenVersion),
			zap.Int("current_version", user.TokenVersion))
		return c.Next()
	}

	roles := []domain.Role(claims.Roles)
	if len(roles) == 0 {
		roles = user.Roles()
	}

	c.Locals(principalKey, &Principal{
		ID:           user.ID,
		Roles:        roles,
		Provider:     claims.Provider,
		TokenVersion: claims.TokenVersion,
	})
	return c.Next()
}

type cachedUser struct {
	ID           string      `json:"id"`
	Role         domain.Role `json:"role"`
	TokenVersion int         `json:"token_version"`
	Active       bool        `json:"active"`
}

// lookupUser re-fetches the user row, deduplicating repeated lookups for the
// same raw token through a short-lived cache. The cache is a latency
// optimization only; a miss or error falls through to the repository.
func (m *UserContextMiddleware) lookupUser(ctx context.Context, rawToken, subjectID string) (*domain.User, error) {
	var cacheKey string
	if m.cache != nil && m.cacheTTL > 0 {
		cacheKey = "session_lookup:" + DigestToken(m.secret, rawToken)
		if raw, err := m.cache.Get(ctx, cacheKey); err == nil {
			var cu cachedUser
			if err := json.Unmarshal([]byte(raw), &cu); err == nil && cu.ID == subjectID {
				return &domain.User{ID: cu.ID, Role: cu.Role, TokenVersion: cu.TokenVersion, Active: cu.Active}, nil
			}
		}
	}

	user, err := m.users.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		raw, err := json.Marshal(cachedUser{
			ID:           user.ID,
			Role:         user.Role,
			TokenVersion: user.TokenVersion,
			Active:       user.Active,
		})
		if err == nil {
			_ = m.cache.Set(ctx, cacheKey, string(raw), m.cacheTTL)
		}
	}
	return user, nil
}

// PrincipalFromContext retrieves the authenticated identity, if any.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
