package sessionclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State names a phase of the controller's lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateSdkLoading     State = "sdk_loading"
	StateSdkReady       State = "sdk_ready"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateError          State = "error"
	StateReloginPending State = "relogin_pending"
)

var (
	// ErrMissingAppID is a terminal configuration error, never retried.
	ErrMissingAppID = errors.New("provider app id not configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session controller closed")
)

// Config tunes the controller.
type Config struct {
	// AppID is the provider channel/app id passed to SDK init.
	AppID string
	// SyncTimeout bounds one synchronization attempt. Defaults to 10s.
	SyncTimeout time.Duration
	// RefreshInterval spaces proactive refreshes. Must be safely below both
	// the provider assertion TTL and the local session TTL. Defaults to 10m.
	RefreshInterval time.Duration
}

// Dependencies wires the controller's collaborators. Visibility, Logger and
// Clock are optional.
type Dependencies struct {
	SDK        SDK
	Loader     ScriptLoader
	API        API
	Visibility Visibility
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Controller drives the client side of the session protocol: it bootstraps
// the provider SDK, exchanges assertions for a first-party session, recovers
// from expired-assertion races and keeps the session fresh while the app is
// foregrounded.
//
// All logically-concurrent triggers (bootstrap, login-state change, refresh
// tick) funnel through Synchronize, which the synchronizing/reloginPending
// flags serialize to at most one in-flight attempt.
type Controller struct {
	cfg        Config
	sdk        SDK
	loader     ScriptLoader
	api        API
	visibility Visibility
	logger     *zap.Logger
	now        func() time.Time

	mu             sync.Mutex
	state          State
	user           *User
	lastError      string
	sdkReady       bool
	synchronizing  bool
	reloginPending bool
	closed         bool
	stamps         Timestamps
	refreshStop    chan struct{}

	diag *diagBuffer
}

// NewController builds a controller in the Idle state.
func NewController(cfg Config, deps Dependencies) *Controller {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 10 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Minute
	}
	if deps.Visibility == nil {
		deps.Visibility = AlwaysVisible
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Controller{
		cfg:        cfg,
		sdk:        deps.SDK,
		loader:     deps.Loader,
		api:        deps.API,
		visibility: deps.Visibility,
		logger:     deps.Logger,
		now:        deps.Clock,
		state:      StateIdle,
		diag:       newDiagBuffer(defaultDiagCapacity, deps.Clock),
	}
}

// Bootstrap makes the SDK available, initializes it and synchronizes the
// session. The not-logged-in branch triggers the provider's own login flow
// and is terminal for the current page load.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateSdkLoading
	c.mu.Unlock()

	if c.loader.Available() {
		c.diag.addf("sdk already present, skipping script load")
	} else {
		c.setStamp(func(t *Timestamps) { t.ScriptAppended = c.now() })
		c.diag.addf("sdk script appended")
		if err := c.loader.Load(ctx); err != nil {
			c.setStamp(func(t *Timestamps) { t.ScriptErrored = c.now() })
			c.diag.addf("sdk script load failed: %v", err)
			c.fail("failed to load provider SDK")
			return err
		}
		c.setStamp(func(t *Timestamps) { t.ScriptLoaded = c.now() })
		c.diag.addf("sdk script loaded")
	}

	// Missing app id is terminal configuration, surfaced rather than retried.
	if c.cfg.AppID == "" {
		c.diag.addf("sdk init skipped: app id missing")
		c.fail("provider app id not configured")
		return ErrMissingAppID
	}

	if err := c.sdk.Init(ctx, c.cfg.AppID); err != nil {
		c.diag.addf("sdk init failed: %v", err)
		c.fail("failed to initialize provider SDK")
		return err
	}
	c.setStamp(func(t *Timestamps) { t.SdkInitialized = c.now() })
	c.diag.addf("sdk initialized")

	c.mu.Lock()
	c.sdkReady = true
	c.state = StateSdkReady
	c.mu.Unlock()

	if !c.sdk.IsLoggedIn() {
		c.beginRelogin("not logged in to provider")
		return nil
	}
	return c.Synchronize(ctx)
}

// Synchronize obtains a fresh assertion and exchanges it with the server.
// Duplicate triggers while a synchronization is in flight, or while a
// relogin redirect is pending, are silent no-ops.
func (c *Controller) Synchronize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.synchronizing || c.reloginPending {
		c.mu.Unlock()
		return nil
	}
	c.synchronizing = true
	c.state = StateAuthenticating
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.synchronizing = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()

	assertion := c.sdk.IDToken()
	if assertion == "" {
		c.beginRelogin("no assertion available")
		return nil
	}
	c.setStamp(func(t *Timestamps) { t.TokenFetched = c.now() })

	// Bounded expired-assertion recovery: at most one silent retry with a
	// fresh assertion; anything else falls through to the redirect login.
	var (
		user    *User
		err     error
		retried bool
	)
	for {
		user, err = c.api.VerifyAssertion(ctx, assertion)
		if err == nil {
			break
		}
		var apiErr *APIError
		if retried || !errors.As(err, &apiErr) || !apiErr.ExpiredAssertion() {
			break
		}
		retried = true
		c.diag.addf("assertion expired upstream (status=%d body=%s), attempting silent recovery", apiErr.Status, apiErr.Body)
		if !c.sdk.IsLoggedIn() {
			c.beginRelogin("provider session lost during recovery")
			return nil
		}
		fresh := c.sdk.IDToken()
		if fresh == "" || fresh == assertion {
			c.beginRelogin("no fresh assertion available for recovery")
			return nil
		}
		assertion = fresh
		c.setStamp(func(t *Timestamps) { t.TokenFetched = c.now() })
	}

	if err != nil {
		message := "failed to synchronize session"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			message = "session synchronization timed out"
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.diag.addf("synchronize failed: status=%d url=%s body=%s", apiErr.Status, apiErr.URL, apiErr.Body)
		} else {
			c.diag.addf("synchronize failed: %v", err)
		}
		c.fail(message)
		return err
	}

	c.setStamp(func(t *Timestamps) { t.LoginSucceeded = c.now() })
	c.diag.addf("session synchronized, user=%s", user.ID)

	c.mu.Lock()
	// Stale-response tolerance: discard the result if teardown or a relogin
	// started while the call was in flight.
	if !c.closed && !c.reloginPending {
		c.user = user
		c.lastError = ""
		c.state = StateAuthenticated
	}
	c.mu.Unlock()

	c.startRefresh()
	return nil
}

// Reinitialize resets all local flags and re-runs Bootstrap. Developer
// recovery affordance, not part of the happy path.
func (c *Controller) Reinitialize(ctx context.Context) error {
	c.stopRefresh()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateIdle
	c.user = nil
	c.lastError = ""
	c.sdkReady = false
	c.synchronizing = false
	c.reloginPending = false
	c.mu.Unlock()
	c.diag.addf("reinitialize requested")
	return c.Bootstrap(ctx)
}

// Logout ends both the provider session (when present) and the server
// session, and clears local state. Server logout always runs.
func (c *Controller) Logout(ctx context.Context) error {
	c.stopRefresh()

	if c.sdk.IsLoggedIn() {
		c.sdk.Logout()
		c.diag.addf("provider logout invoked")
	}

	err := c.api.Logout(ctx)
	if err != nil {
		c.diag.addf("server logout failed: %v", err)
		c.logger.Warn("server logout failed", zap.Error(err))
	} else {
		c.diag.addf("server logout completed")
	}

	c.mu.Lock()
	c.user = nil
	c.lastError = ""
	c.reloginPending = false
	c.state = StateIdle
	c.mu.Unlock()
	return err
}

// Close tears down the refresh timer and rejects further operations.
func (c *Controller) Close() {
	c.stopRefresh()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// beginRelogin flips to ReloginPending and triggers the provider's login
// flow exactly once; once the flag is set, further triggers are suppressed
// until a successful sync or an explicit reinitialize clears it.
func (c *Controller) beginRelogin(reason string) {
	c.mu.Lock()
	if c.reloginPending || c.closed {
		c.mu.Unlock()
		return
	}
	c.reloginPending = true
	c.state = StateReloginPending
	c.mu.Unlock()

	c.setStamp(func(t *Timestamps) { t.LoginAttempted = c.now() })
	c.diag.addf("relogin: %s", reason)
	c.sdk.Login()
}

func (c *Controller) fail(message string) {
	c.mu.Lock()
	c.lastError = message
	c.state = StateError
	c.mu.Unlock()
}

func (c *Controller) setStamp(update func(*Timestamps)) {
	c.mu.Lock()
	update(&c.stamps)
	c.mu.Unlock()
}

// startRefresh launches the foreground-only refresh loop if not running.
func (c *Controller) startRefresh() {
	c.mu.Lock()
	if c.refreshStop != nil || c.closed {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.refreshStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.refreshTick()
			}
		}
	}()
}

func (c *Controller) stopRefresh() {
	c.mu.Lock()
	stop := c.refreshStop
	c.refreshStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// refreshTick runs one scheduled refresh. Hidden pages skip the tick
// entirely; missed ticks are not made up.
func (c *Controller) refreshTick() {
	if c.visibility.Hidden() {
		c.diag.addf("refresh tick skipped: page hidden")
		return
	}

	c.mu.Lock()
	authenticated := c.state == StateAuthenticated
	c.mu.Unlock()
	if !authenticated || !c.sdk.IsLoggedIn() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SyncTimeout)
	defer cancel()
	if err := c.Synchronize(ctx); err != nil {
		// surfaced via lastError and diagnostics; next tick will try again
		c.logger.Debug("proactive refresh failed", zap.Error(err))
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the synchronized user, nil when unauthenticated.
func (c *Controller) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// LastError returns the user-visible error string, empty when none.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// SdkReady reports whether SDK init completed.
func (c *Controller) SdkReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sdkReady
}

// ReloginPending reports whether a provider redirect login is underway.
func (c *Controller) ReloginPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloginPending
}

// Timestamps returns a copy of the observability checkpoints.
func (c *Controller) Timestamps() Timestamps {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stamps
}

// DiagnosticLog returns the ring buffer contents, oldest first.
func (c *Controller) DiagnosticLog() []DiagnosticLine {
	return c.diag.snapshot()
}
