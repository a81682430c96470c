package events

import (
	"time"

	"github.com/stagecall/audition-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserLoggedIn       EventType = "user_logged_in"
	EventUserLoggedOut      EventType = "user_logged_out"
	EventMagicLinkRequested EventType = "magic_link_requested"
	EventSessionsRevoked    EventType = "sessions_revoked"
)

// Event represents an auth event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserLoggedInPayload payload.
type UserLoggedInPayload struct {
	Provider domain.Provider `json:"provider"`
	NewUser  bool            `json:"new_user"`
}

// MagicLinkRequestedPayload payload. Carries the link for the notifier to
// deliver; handlers must not log the URL.
type MagicLinkRequestedPayload struct {
	Email        string    `json:"email"`
	MagicLinkURL string    `json:"magic_link_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionsRevokedPayload payload.
type SessionsRevokedPayload struct {
	NewTokenVersion int `json:"new_token_version"`
}
