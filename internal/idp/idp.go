package idp

import "context"

// Verifier abstracts the identity provider's introspection endpoint so the
// session service can be exercised without outbound calls.
type Verifier interface {
	Configured() bool
	VerifyIDToken(ctx context.Context, idToken string) (*Profile, error)
}

var _ Verifier = (*LineVerifier)(nil)
