package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stagecall/audition-service/internal/config"
)

// Profile is the verified identity returned by the provider.
type Profile struct {
	SubjectID   string
	DisplayName string
	Email       *string
}

// VerificationError carries the provider's rejection verbatim so callers can
// distinguish an expired assertion from other failures.
type VerificationError struct {
	StatusCode int
	Body       string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("identity provider rejected assertion: status=%d body=%s", e.StatusCode, e.Body)
}

// ExpiredAssertion reports whether the rejection was specifically for an
// expired ID token, the one case eligible for silent client-side recovery.
func (e *VerificationError) ExpiredAssertion() bool {
	return strings.Contains(strings.ToLower(e.Body), "idtoken expired") ||
		strings.Contains(strings.ToLower(e.Body), "id token expired")
}

// ErrNotConfigured is returned when the LINE channel id is missing.
var ErrNotConfigured = errors.New("line channel not configured")

// LineVerifier exchanges LINE ID tokens for verified profiles via the
// channel's token introspection endpoint. Assertions are single-use and
// short-lived, so results are never cached.
type LineVerifier struct {
	cfg    config.LineConfig
	client *http.Client
}

// NewLineVerifier builds a verifier with a bounded outbound timeout.
func NewLineVerifier(cfg config.LineConfig) *LineVerifier {
	return &LineVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether verification can be attempted at all.
func (v *LineVerifier) Configured() bool {
	return v.cfg.ChannelID != ""
}

type lineVerifyResponse struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Aud     string `json:"aud"`
	Exp     int64  `json:"exp"`
	Error   string `json:"error"`
	ErrDesc string `json:"error_description"`
}

// VerifyIDToken introspects the assertion with LINE and returns the profile.
func (v *LineVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Profile, error) {
	if !v.Configured() {
		return nil, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("client_id", v.cfg.ChannelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &VerificationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload lineVerifyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if payload.Sub == "" {
		return nil, &VerificationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	profile := &Profile{SubjectID: payload.Sub, DisplayName: payload.Name}
	if payload.Email != "" {
		email := payload.Email
		profile.Email = &email
	}
	return profile, nil
}
