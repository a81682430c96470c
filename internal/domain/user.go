package domain

import "time"

// Provider identifies which identity provider backed a session.
type Provider string

const (
	ProviderLine  Provider = "line"
	ProviderEmail Provider = "email"
)

// Valid reports whether the provider is one this service issues sessions for.
func (p Provider) Valid() bool {
	return p == ProviderLine || p == ProviderEmail
}

// Role names a coarse permission level attached to a user.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User is the durable identity record owned by the relational store.
// Exactly one of Email or LineUserID is the natural dedup key per provider.
type User struct {
	ID           string
	Email        *string
	LineUserID   *string
	DisplayName  string
	Role         Role
	TokenVersion int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Roles returns the user's role set in issuance order.
func (u *User) Roles() []Role {
	if u == nil || u.Role == "" {
		return nil
	}
	return []Role{u.Role}
}
