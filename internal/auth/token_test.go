package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stagecall/audition-service/internal/domain"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, expiresAt, err := tm.Mint("user-1", []domain.Role{domain.RoleApplicant}, domain.ProviderLine, 3)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, RoleList{domain.RoleApplicant}, claims.Roles)
	require.Equal(t, domain.ProviderLine, claims.Provider)
	require.Equal(t, 3, claims.TokenVersion)
	require.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestVerifyExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, _, err := tm.MintWithTTL("user-1", []domain.Role{domain.RoleApplicant}, domain.ProviderLine, 0, -time.Second)
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
	require.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyTampered(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, _, err := tm.Mint("user-1", []domain.Role{domain.RoleApplicant}, domain.ProviderLine, 0)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = tm.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", time.Hour).Mint("user-1", nil, domain.ProviderLine, 0)
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMalformed(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, err := tm.Verify("not-a-token")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.Error(t, err)
}

func TestLegacySingleStringRolesClaim(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	// Earlier token iterations carried roles as a bare string.
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           "user-1",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"iat":           time.Now().Unix(),
		"roles":         "organizer",
		"provider":      "line",
		"token_version": 1,
	})
	token, err := legacy.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, RoleList{domain.RoleOrganizer}, claims.Roles)
}
