package dto

import (
	"time"

	"github.com/stagecall/audition-service/internal/domain"
)

// LineVerifyRequest carries the third-party identity assertion.
type LineVerifyRequest struct {
	AssertionToken string `json:"assertionToken"`
}

// MagicLinkRequest asks for a single-use login link.
type MagicLinkRequest struct {
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// MagicLinkVerifyRequest consumes a previously issued link.
type MagicLinkVerifyRequest struct {
	Token string `json:"token"`
}

// MagicLinkResponse is returned on successful link issuance.
type MagicLinkResponse struct {
	Token        string    `json:"token"`
	MagicLinkURL string    `json:"magicLinkUrl,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// UserView is the public projection of a user record.
type UserView struct {
	ID          string  `json:"id"`
	Email       *string `json:"email,omitempty"`
	DisplayName string  `json:"displayName"`
	Role        string  `json:"role"`
}

// NewUserView projects a domain user.
func NewUserView(user *domain.User) *UserView {
	if user == nil {
		return nil
	}
	return &UserView{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	}
}
