package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stagecall/audition-service/internal/config"
	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/events"
	"github.com/stagecall/audition-service/internal/idp"
	"github.com/stagecall/audition-service/internal/observability"
	"github.com/stagecall/audition-service/internal/repository"
	apperrors "github.com/stagecall/audition-service/pkg/util"
)

type fakeVerifier struct {
	configured bool
	profile    *idp.Profile
	err        error
	calls      int
}

func (f *fakeVerifier) Configured() bool { return f.configured }

func (f *fakeVerifier) VerifyIDToken(_ context.Context, _ string) (*idp.Profile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			SessionTTLHours: 24,
		},
	}
}

func newTestSessionService(users repository.UserRepository, verifier idp.Verifier) *SessionService {
	return NewSessionService(testConfig(), SessionDependencies{
		UserRepo:   users,
		Verifier:   verifier,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		Logger:     zap.NewNop(),
	})
}

func TestLoginWithLineAssertion(t *testing.T) {
	users := repository.NewInMemoryUserRepository()
	verifier := &fakeVerifier{configured: true, profile: &idp.Profile{SubjectID: "U123", DisplayName: "Alice"}}
	svc := newTestSessionService(users, verifier)

	session, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, domain.RoleApplicant, session.User.Role)
	require.True(t, session.ExpiresAt.After(time.Now()))

	claims, err := svc.TokenManager().Verify(session.Token)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, claims.Subject)
	require.Equal(t, domain.ProviderLine, claims.Provider)
}

func TestLoginUpsertIsIdempotent(t *testing.T) {
	users := repository.NewInMemoryUserRepository()
	verifier := &fakeVerifier{configured: true, profile: &idp.Profile{SubjectID: "U123", DisplayName: "Alice"}}
	svc := newTestSessionService(users, verifier)

	first, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	require.NoError(t, err)

	verifier.profile.DisplayName = "Alice Renamed"
	second, err := svc.LoginWithLineAssertion(context.Background(), "tok2")
	require.NoError(t, err)

	require.Equal(t, 1, users.Count())
	require.Equal(t, first.User.ID, second.User.ID)
	require.Equal(t, "Alice Renamed", second.User.DisplayName)
}

func TestLoginMissingAssertion(t *testing.T) {
	svc := newTestSessionService(repository.NewInMemoryUserRepository(), &fakeVerifier{configured: true})

	_, err := svc.LoginWithLineAssertion(context.Background(), "")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 400, domainErr.HTTPStatus)
}

func TestLoginProviderNotConfigured(t *testing.T) {
	svc := newTestSessionService(repository.NewInMemoryUserRepository(), &fakeVerifier{configured: false})

	_, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 500, domainErr.HTTPStatus)
	require.Equal(t, "NOT_CONFIGURED", domainErr.Code)
}

func TestLoginUpstreamRejectionPreservesDetail(t *testing.T) {
	verifier := &fakeVerifier{
		configured: true,
		err:        &idp.VerificationError{StatusCode: 400, Body: `{"error_description":"IdToken expired"}`},
	}
	svc := newTestSessionService(repository.NewInMemoryUserRepository(), verifier)

	_, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 401, domainErr.HTTPStatus)
	require.Contains(t, domainErr.Details["details"], "IdToken expired")
}

func TestCurrentSessionSlidingRenewal(t *testing.T) {
	users := repository.NewInMemoryUserRepository()
	verifier := &fakeVerifier{configured: true, profile: &idp.Profile{SubjectID: "U123", DisplayName: "Alice"}}
	svc := newTestSessionService(users, verifier)

	login, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	require.NoError(t, err)

	first, err := svc.CurrentSession(context.Background(), login.Token)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.CurrentSession(context.Background(), first.Token)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, first.User.ID, second.User.ID)
	require.False(t, second.ExpiresAt.Before(first.ExpiresAt))
}

func TestCurrentSessionAbsentIsNotAnError(t *testing.T) {
	svc := newTestSessionService(repository.NewInMemoryUserRepository(), &fakeVerifier{configured: true})

	session, err := svc.CurrentSession(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, session)

	session, err = svc.CurrentSession(context.Background(), "garbage")
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestRevokeSessionsInvalidatesOutstandingTokens(t *testing.T) {
	users := repository.NewInMemoryUserRepository()
	verifier := &fakeVerifier{configured: true, profile: &idp.Profile{SubjectID: "U123", DisplayName: "Alice"}}
	svc := newTestSessionService(users, verifier)

	login, err := svc.LoginWithLineAssertion(context.Background(), "tok1")
	require.NoError(t, err)

	version, err := svc.RevokeSessions(context.Background(), login.User.ID)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	session, err := svc.CurrentSession(context.Background(), login.Token)
	require.NoError(t, err)
	require.Nil(t, session)
}
