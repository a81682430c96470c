package auth

import (
	"encoding/json"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/stagecall/audition-service/internal/domain"
)

// Verification failures are collapsed into three kinds; callers treat all of
// them as "no session" rather than server errors.
var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformed        = errors.New("token malformed")
)

// TokenManager mints and verifies the signed session tokens carried in the
// auth cookie.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// RoleList normalizes the roles claim. Tokens minted by earlier iterations
// carried a single string; current tokens carry a list. Both decode to a list.
type RoleList []domain.Role

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (r *RoleList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
			return nil
		}
		*r = RoleList{domain.Role(single)}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	roles := make(RoleList, 0, len(many))
	for _, name := range many {
		roles = append(roles, domain.Role(name))
	}
	*r = roles
	return nil
}

// SessionClaims describes the JWT payload.
type SessionClaims struct {
	Roles        RoleList        `json:"roles"`
	Provider     domain.Provider `json:"provider"`
	TokenVersion int             `json:"token_version"`
	jwt.RegisteredClaims
}

// Mint builds and signs a session token for the subject using the default TTL.
func (tm *TokenManager) Mint(subjectID string, roles []domain.Role, provider domain.Provider, tokenVersion int) (string, time.Time, error) {
	return tm.MintWithTTL(subjectID, roles, provider, tokenVersion, tm.ttl)
}

// MintWithTTL signs a token with an explicit lifetime. A zero or negative ttl
// produces an already-expired token; verification will report ErrExpired.
func (tm *TokenManager) MintWithTTL(subjectID string, roles []domain.Role, provider domain.Provider, tokenVersion int, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &SessionClaims{
		Roles:        RoleList(roles),
		Provider:     provider,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify validates signature and expiry, returning the decoded claims.
// Both checks happen before any claim is trusted; alg is pinned to HS256 so
// an alg=none token can never pass.
func (tm *TokenManager) Verify(tokenStr string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return tm.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || !claims.Provider.Valid() {
		return nil, ErrMalformed
	}
	return claims, nil
}
