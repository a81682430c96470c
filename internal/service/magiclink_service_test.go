package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/events"
	"github.com/stagecall/audition-service/internal/kv"
	"github.com/stagecall/audition-service/internal/observability"
	"github.com/stagecall/audition-service/internal/repository"
	apperrors "github.com/stagecall/audition-service/pkg/util"
)

func newTestMagicLinkService(perMinute int) (*MagicLinkService, *repository.InMemoryUserRepository) {
	cfg := testConfig()
	cfg.Auth.MagicLinkTTLMinutes = 10
	cfg.Auth.MagicLinkRequestsPerMinute = perMinute

	users := repository.NewInMemoryUserRepository()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sessions := NewSessionService(cfg, SessionDependencies{
		UserRepo:   users,
		Verifier:   &fakeVerifier{configured: true},
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	})
	return NewMagicLinkService(cfg, kv.NewMemoryStore(), users, sessions, dispatcher, metrics, zap.NewNop()), users
}

func TestMagicLinkSingleUse(t *testing.T) {
	svc, _ := newTestMagicLinkService(10)
	ctx := context.Background()

	link, err := svc.Request(ctx, "a@b.com", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, link.Token)

	session, err := svc.Verify(ctx, link.Token)
	require.NoError(t, err)
	require.NotNil(t, session.User.Email)
	require.Equal(t, "a@b.com", *session.User.Email)

	_, err = svc.Verify(ctx, link.Token)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 400, domainErr.HTTPStatus)
}

func TestMagicLinkVerifyUnknownToken(t *testing.T) {
	svc, _ := newTestMagicLinkService(10)

	_, err := svc.Verify(context.Background(), "never-issued")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 400, domainErr.HTTPStatus)
}

func TestMagicLinkSeedsRoleOnFirstLogin(t *testing.T) {
	svc, _ := newTestMagicLinkService(10)
	ctx := context.Background()

	link, err := svc.Request(ctx, "org@b.com", domain.RoleOrganizer, "")
	require.NoError(t, err)

	session, err := svc.Verify(ctx, link.Token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOrganizer, session.User.Role)
}

func TestMagicLinkRepeatLoginDoesNotDuplicateUser(t *testing.T) {
	svc, users := newTestMagicLinkService(10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		link, err := svc.Request(ctx, "a@b.com", "", "")
		require.NoError(t, err)
		_, err = svc.Verify(ctx, link.Token)
		require.NoError(t, err)
	}
	require.Equal(t, 1, users.Count())
}

func TestMagicLinkRejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestMagicLinkService(10)

	_, err := svc.Request(context.Background(), "not-an-email", "", "")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 400, domainErr.HTTPStatus)
}

func TestMagicLinkRateLimited(t *testing.T) {
	svc, _ := newTestMagicLinkService(2)
	ctx := context.Background()

	_, err := svc.Request(ctx, "a@b.com", "", "")
	require.NoError(t, err)
	_, err = svc.Request(ctx, "a@b.com", "", "")
	require.NoError(t, err)

	_, err = svc.Request(ctx, "a@b.com", "", "")
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, 429, domainErr.HTTPStatus)

	// Other addresses are unaffected.
	_, err = svc.Request(ctx, "c@d.com", "", "")
	require.NoError(t, err)
}

func TestMagicLinkURLCarriesToken(t *testing.T) {
	svc, _ := newTestMagicLinkService(10)

	link, err := svc.Request(context.Background(), "a@b.com", "", "https://app.example.com/login/callback")
	require.NoError(t, err)
	require.Contains(t, link.MagicLinkURL, "token="+link.Token)
}
