package sessionclient

import "context"

// Profile is the identity profile exposed by the provider SDK.
type Profile struct {
	UserID      string
	DisplayName string
	PictureURL  string
}

// SDK is the narrow capability surface the controller needs from the LINE
// LIFF SDK. The real SDK lives on a browser global; the controller never
// touches that directly, only an adapter implementing this interface.
type SDK interface {
	// Init initializes the SDK with the channel's app id.
	Init(ctx context.Context, appID string) error
	// IsLoggedIn reports whether the end-user holds a provider session.
	IsLoggedIn() bool
	// Login starts the provider's own login flow. In a browser this performs
	// a full-page redirect and never returns control to the caller.
	Login()
	// Logout clears the provider session.
	Logout()
	// IDToken returns a fresh identity assertion, empty when unavailable.
	IDToken() string
	// GetProfile fetches the provider profile.
	GetProfile(ctx context.Context) (*Profile, error)
	// IsInClient reports whether the app runs inside the provider's client.
	IsInClient() bool
}

// ScriptLoader makes the SDK available in the execution environment, e.g. by
// injecting its script resource. Load resolves on success or fails on error;
// implementations must be safe to call when the SDK is already present.
type ScriptLoader interface {
	// Available reports whether the SDK is already loaded.
	Available() bool
	Load(ctx context.Context) error
}

// Visibility reports whether the host page is currently backgrounded, so the
// proactive refresh can skip hidden ticks.
type Visibility interface {
	Hidden() bool
}

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func() bool

func (f VisibilityFunc) Hidden() bool { return f() }

// AlwaysVisible is the default when no visibility source is wired.
var AlwaysVisible Visibility = VisibilityFunc(func() bool { return false })

// BridgeSDK adapts host-environment callbacks to the SDK interface, for
// embedding environments where the SDK calls cross a language boundary.
// Any nil func degrades to a safe zero-value behavior.
type BridgeSDK struct {
	InitFunc       func(ctx context.Context, appID string) error
	IsLoggedInFunc func() bool
	LoginFunc      func()
	LogoutFunc     func()
	IDTokenFunc    func() string
	ProfileFunc    func(ctx context.Context) (*Profile, error)
	IsInClientFunc func() bool
}

func (b *BridgeSDK) Init(ctx context.Context, appID string) error {
	if b.InitFunc == nil {
		return nil
	}
	return b.InitFunc(ctx, appID)
}

func (b *BridgeSDK) IsLoggedIn() bool {
	return b.IsLoggedInFunc != nil && b.IsLoggedInFunc()
}

func (b *BridgeSDK) Login() {
	if b.LoginFunc != nil {
		b.LoginFunc()
	}
}

func (b *BridgeSDK) Logout() {
	if b.LogoutFunc != nil {
		b.LogoutFunc()
	}
}

func (b *BridgeSDK) IDToken() string {
	if b.IDTokenFunc == nil {
		return ""
	}
	return b.IDTokenFunc()
}

func (b *BridgeSDK) GetProfile(ctx context.Context) (*Profile, error) {
	if b.ProfileFunc == nil {
		return nil, nil
	}
	return b.ProfileFunc(ctx)
}

func (b *BridgeSDK) IsInClient() bool {
	return b.IsInClientFunc != nil && b.IsInClientFunc()
}
