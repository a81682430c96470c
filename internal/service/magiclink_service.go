package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stagecall/audition-service/internal/auth"
	"github.com/stagecall/audition-service/internal/config"
	"github.com/stagecall/audition-service/internal/domain"
	"github.com/stagecall/audition-service/internal/events"
	"github.com/stagecall/audition-service/internal/kv"
	"github.com/stagecall/audition-service/internal/observability"
	"github.com/stagecall/audition-service/internal/repository"
	apperrors "github.com/stagecall/audition-service/pkg/util"
)

const magicLinkKeyPrefix = "magic_link:"

// MagicLink is the issued single-use login link.
type MagicLink struct {
	Token        string
	MagicLinkURL string
	ExpiresAt    time.Time
}

type magicLinkEntry struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
}

// MagicLinkService issues and consumes single-use, short-TTL login tokens.
// Tokens live only in the KV store, keyed by a keyed digest so a dumped cache
// exposes no usable links; GETDEL consumption guarantees at-most-one use.
type MagicLinkService struct {
	store    kv.Store
	users    repository.UserRepository
	sessions *SessionService
	dispatch events.Dispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	secret   string
	ttl      time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewMagicLinkService builds the service.
func NewMagicLinkService(cfg config.Config, store kv.Store, users repository.UserRepository, sessions *SessionService, dispatch events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *MagicLinkService {
	return &MagicLinkService{
		store:    store,
		users:    users,
		sessions: sessions,
		dispatch: dispatch,
		metrics:  metrics,
		logger:   logger,
		secret:   cfg.Auth.JWTSecret,
		ttl:      cfg.Auth.MagicLinkTTL(),
		limiters: make(map[string]*rate.Limiter),
		perMin:   cfg.Auth.MagicLinkRequestsPerMinute,
	}
}

// Request issues a new link for the email. role seeds the user record on
// first login; redirectURL, when given, becomes the base of the emailed link.
func (s *MagicLinkService) Request(ctx context.Context, email string, role domain.Role, redirectURL string) (*MagicLink, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("valid email required", nil)
	}
	if role != "" && role != domain.RoleApplicant && role != domain.RoleOrganizer {
		return nil, apperrors.NewValidationError("role not allowed", map[string]any{"role": role})
	}
	if !s.allow(email) {
		s.metrics.RecordMagicLink("request", "rate_limited")
		return nil, apperrors.NewDomainError("RATE_LIMITED", "too many magic link requests", 429, nil)
	}

	token := uuid.NewString()
	entry, err := json.Marshal(magicLinkEntry{Email: email, Role: role})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	key := magicLinkKeyPrefix + auth.DigestToken(s.secret, token)
	if err := s.store.Set(ctx, key, string(entry), s.ttl); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	link := &MagicLink{Token: token, ExpiresAt: time.Now().Add(s.ttl)}
	if redirectURL != "" {
		link.MagicLinkURL = buildMagicLinkURL(redirectURL, token)
	}

	s.metrics.RecordMagicLink("request", "ok")
	s.publish(ctx, events.Event{
		Type: events.EventMagicLinkRequested,
		Payload: events.MagicLinkRequestedPayload{
			Email:        email,
			MagicLinkURL: link.MagicLinkURL,
			ExpiresAt:    link.ExpiresAt,
		},
	})
	return link, nil
}

// Verify consumes the token exactly once and logs in the mapped user.
func (s *MagicLinkService) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperrors.NewValidationError("token required", nil)
	}

	key := magicLinkKeyPrefix + auth.DigestToken(s.secret, token)
	raw, err := s.store.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			s.metrics.RecordMagicLink("verify", "invalid")
			return nil, apperrors.NewValidationError("magic link invalid, expired or already used", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	var entry magicLinkEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user, err := s.users.UpsertByEmail(ctx, entry.Email, entry.Role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	session, err := s.sessions.IssueForUser(ctx, user, domain.ProviderEmail)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMagicLink("verify", "ok")
	return session, nil
}

// allow applies the per-email request limit.
func (s *MagicLinkService) allow(email string) bool {
	if s.perMin <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[email]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.perMin)/60.0), s.perMin)
		s.limiters[email] = limiter
	}
	return limiter.Allow()
}

func (s *MagicLinkService) publish(ctx context.Context, event events.Event) {
	if s.dispatch == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatch.Publish(ctx, event)
}

func buildMagicLinkURL(base, token string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
