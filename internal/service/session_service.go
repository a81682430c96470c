package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/stagecall/audition-service/internal/auth"
	"github.com/stagecall/audition-service/internal/config"
	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/events"
	"github.com/stagecall/audition-service/internal/idp"
	"github.com/stagecall/audition-service/internal/observability"
	"github.com/stagecall/audition-service/internal/repository"
	apperrors "github.com/stagecall/audition-service/pkg/util"
)

// Session bundles a minted token with the user it represents.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// SessionService verifies identity assertions, upserts users and mints
// session tokens. Tokens are stateless; the only server-side revocation
// lever is the per-user token version.
type SessionService struct {
	users      repository.UserRepository
	verifier   idp.Verifier
	tokens     *auth.TokenManager
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	ttl        time.Duration
}

// SessionDependencies encapsulates collaborator requirements.
type SessionDependencies struct {
	UserRepo   repository.UserRepository
	Verifier   idp.Verifier
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewSessionService builds the service.
func NewSessionService(cfg config.Config, deps SessionDependencies) *SessionService {
	return &SessionService{
		users:      deps.UserRepo,
		verifier:   deps.Verifier,
		tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL()),
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		ttl:        cfg.Auth.SessionTTL(),
	}
}

// LoginWithLineAssertion exchanges a LINE ID token for a first-party session.
func (s *SessionService) LoginWithLineAssertion(ctx context.Context, assertionToken string) (*Session, error) {
	if assertionToken == "" {
		return nil, apperrors.NewValidationError("assertion token required", nil)
	}
	if s.verifier == nil || !s.verifier.Configured() {
		return nil, apperrors.NewConfigurationError("identity provider not configured")
	}

	profile, err := s.verifier.VerifyIDToken(ctx, assertionToken)
	if err != nil {
		s.metrics.RecordLoginAttempt(string(domain.ProviderLine), "rejected")
		var verr *idp.VerificationError
		if errors.As(err, &verr) {
			s.logger.Info("identity assertion rejected",
				zap.Int("upstream_status", verr.StatusCode),
				zap.String("upstream_body", verr.Body))
			return nil, apperrors.NewUpstreamRejection("assertion rejected by identity provider", verr.StatusCode, verr.Body)
		}
		return nil, apperrors.MapError(err)
	}

	user, err := s.users.GetByLineUserID(ctx, profile.SubjectID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		created = true
	default:
		return nil, apperrors.MapError(err)
	}

	user, err = s.users.UpsertByLineUserID(ctx, profile.SubjectID, profile.DisplayName)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		s.metrics.RecordLoginAttempt(string(domain.ProviderLine), "inactive")
		return nil, apperrors.NewUnauthorized("account disabled")
	}

	session, err := s.issue(user, domain.ProviderLine)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLoginAttempt(string(domain.ProviderLine), "ok")
	s.publish(ctx, events.Event{
		Type:    events.EventUserLoggedIn,
		UserID:  user.ID,
		Payload: events.UserLoggedInPayload{Provider: domain.ProviderLine, NewUser: created},
	})
	return session, nil
}

// CurrentSession verifies the presented token, re-fetches the user row to
// catch role or version drift, and re-mints a fresh token (sliding
// expiration). A nil session with nil error means "no valid session".
func (s *SessionService) CurrentSession(ctx context.Context, rawToken string) (*Session, error) {
	if rawToken == "" {
		return nil, nil
	}

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		s.metrics.RecordTokenVerification(verificationResult(err))
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active || user.TokenVersion != claims.TokenVersion {
		s.metrics.RecordTokenVerification("version_mismatch")
		return nil, nil
	}

	s.metrics.RecordTokenVerification("ok")
	return s.issue(user, claims.Provider)
}

// RevokeSessions bumps the user's token version, invalidating every
// outstanding session token at once.
func (s *SessionService) RevokeSessions(ctx context.Context, userID string) (int, error) {
	version, err := s.users.BumpTokenVersion(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return 0, apperrors.MapError(err)
	}

	s.logger.Info("sessions revoked", zap.String("user_id", userID), zap.Int("token_version", version))
	s.publish(ctx, events.Event{
		Type:    events.EventSessionsRevoked,
		UserID:  userID,
		Payload: events.SessionsRevokedPayload{NewTokenVersion: version},
	})
	return version, nil
}

// IssueForUser mints a session directly for an already-verified user. Used by
// the magic-link flow after the link is consumed.
func (s *SessionService) IssueForUser(ctx context.Context, user *domain.User, provider domain.Provider) (*Session, error) {
	if !user.Active {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	session, err := s.issue(user, provider)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLoginAttempt(string(provider), "ok")
	s.publish(ctx, events.Event{
		Type:    events.EventUserLoggedIn,
		UserID:  user.ID,
		Payload: events.UserLoggedInPayload{Provider: provider},
	})
	return session, nil
}

// Logout emits the logout event. Cookie clearing happens at the transport
// layer; stateless tokens have nothing to delete server-side.
func (s *SessionService) Logout(ctx context.Context, userID string) {
	if userID != "" {
		s.publish(ctx, events.Event{Type: events.EventUserLoggedOut, UserID: userID})
	}
}

// SessionTTL exposes the configured token lifetime for cookie max-age.
func (s *SessionService) SessionTTL() time.Duration {
	return s.ttl
}

// TokenManager exposes the codec for middleware wiring.
func (s *SessionService) TokenManager() *auth.TokenManager {
	return s.tokens
}

func (s *SessionService) issue(user *domain.User, provider domain.Provider) (*Session, error) {
	token, expiresAt, err := s.tokens.Mint(user.ID, user.Roles(), provider, user.TokenVersion)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordSessionIssued(string(provider))
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}
