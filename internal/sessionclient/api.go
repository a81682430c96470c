package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// User is the session service's public user view as seen by the client.
type User struct {
	ID          string  `json:"id"`
	Email       *string `json:"email,omitempty"`
	DisplayName string  `json:"displayName"`
	Role        string  `json:"role"`
}

// API is the session service surface the controller synchronizes against.
type API interface {
	// VerifyAssertion exchanges a provider assertion for a first-party
	// session. The session cookie rides on the underlying transport.
	VerifyAssertion(ctx context.Context, assertionToken string) (*User, error)
	// CurrentSession returns the active user, or nil without error when no
	// valid session exists.
	CurrentSession(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
}

// APIError preserves the server's rejection detail for diagnostics and for
// the expired-assertion recovery check.
type APIError struct {
	Status int
	Body   string
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("session api: status=%d url=%s body=%s", e.Status, e.URL, e.Body)
}

// ExpiredAssertion reports whether the server rejected the assertion because
// the assertion itself expired. Only this case is silently retried.
func (e *APIError) ExpiredAssertion() bool {
	if e.Status != http.StatusUnauthorized {
		return false
	}
	lower := strings.ToLower(e.Body)
	return strings.Contains(lower, "idtoken expired") || strings.Contains(lower, "id token expired")
}

// HTTPAPI talks to the session service over HTTP with a cookie jar, so the
// auth cookie set on login is presented on subsequent calls.
type HTTPAPI struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAPI builds a client for the given service base URL.
func NewHTTPAPI(baseURL string) (*HTTPAPI, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar},
	}, nil
}

type userEnvelope struct {
	User *User `json:"user"`
}

func (a *HTTPAPI) VerifyAssertion(ctx context.Context, assertionToken string) (*User, error) {
	var envelope userEnvelope
	if err := a.post(ctx, "/auth/line/verify", map[string]string{"assertionToken": assertionToken}, &envelope); err != nil {
		return nil, err
	}
	return envelope.User, nil
}

func (a *HTTPAPI) CurrentSession(ctx context.Context) (*User, error) {
	url := a.baseURL + "/auth/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var envelope userEnvelope
	if err := a.do(req, &envelope); err != nil {
		return nil, err
	}
	return envelope.User, nil
}

func (a *HTTPAPI) Logout(ctx context.Context) error {
	return a.post(ctx, "/auth/logout", map[string]string{}, nil)
}

func (a *HTTPAPI) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *HTTPAPI) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(body), URL: req.URL.String()}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
