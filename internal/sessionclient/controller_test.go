package sessionclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	mu          sync.Mutex
	loggedIn    bool
	tokens      []string
	tokenIdx    int
	initCalls   int
	loginCalls  int
	logoutCalls int
	initErr     error
}

func (f *fakeSDK) Init(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeSDK) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeSDK) Login() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
}

func (f *fakeSDK) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.loggedIn = false
}

func (f *fakeSDK) IDToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	token := f.tokens[f.tokenIdx]
	if f.tokenIdx < len(f.tokens)-1 {
		f.tokenIdx++
	}
	return token
}

func (f *fakeSDK) GetProfile(context.Context) (*Profile, error) { return nil, nil }
func (f *fakeSDK) IsInClient() bool                             { return false }

type fakeLoader struct {
	available bool
	loadErr   error
	loadCalls int
}

func (f *fakeLoader) Available() bool { return f.available }

func (f *fakeLoader) Load(context.Context) error {
	f.loadCalls++
	if f.loadErr != nil {
		return f.loadErr
	}
	f.available = true
	return nil
}

type fakeAPI struct {
	mu          sync.Mutex
	calls       []string
	logoutCalls int
	delay       time.Duration
	verify      func(assertion string) (*User, error)
}

func (f *fakeAPI) VerifyAssertion(ctx context.Context, assertion string) (*User, error) {
	f.mu.Lock()
	f.calls = append(f.calls, assertion)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.verify != nil {
		return f.verify(assertion)
	}
	return &User{ID: "user-1", DisplayName: "Alice", Role: "applicant"}, nil
}

func (f *fakeAPI) CurrentSession(context.Context) (*User, error) { return nil, nil }

func (f *fakeAPI) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestController(sdk *fakeSDK, loader *fakeLoader, api *fakeAPI) *Controller {
	return NewController(Config{AppID: "app-1"}, Dependencies{
		SDK:    sdk,
		Loader: loader,
		API:    api,
	})
}

func TestHappyPathLogin(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	loader := &fakeLoader{available: true}
	api := &fakeAPI{}
	controller := newTestController(sdk, loader, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))

	require.Equal(t, StateAuthenticated, controller.State())
	require.NotNil(t, controller.User())
	require.Equal(t, "user-1", controller.User().ID)
	require.Empty(t, controller.LastError())
	require.True(t, controller.SdkReady())
	require.Equal(t, 0, loader.loadCalls, "present SDK must not be re-loaded")
	require.False(t, controller.Timestamps().LoginSucceeded.IsZero())
}

func TestBootstrapLoadsScriptWhenAbsent(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	loader := &fakeLoader{available: false}
	api := &fakeAPI{}
	controller := newTestController(sdk, loader, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))
	require.Equal(t, 1, loader.loadCalls)

	stamps := controller.Timestamps()
	require.False(t, stamps.ScriptAppended.IsZero())
	require.False(t, stamps.ScriptLoaded.IsZero())
}

func TestScriptLoadFailure(t *testing.T) {
	sdk := &fakeSDK{}
	loader := &fakeLoader{available: false, loadErr: errors.New("network down")}
	controller := newTestController(sdk, loader, &fakeAPI{})
	defer controller.Close()

	err := controller.Bootstrap(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, controller.State())
	require.NotEmpty(t, controller.LastError())
	require.False(t, controller.Timestamps().ScriptErrored.IsZero())
}

func TestMissingAppIDIsTerminal(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	controller := NewController(Config{}, Dependencies{
		SDK:    sdk,
		Loader: &fakeLoader{available: true},
		API:    &fakeAPI{},
	})
	defer controller.Close()

	err := controller.Bootstrap(context.Background())
	require.ErrorIs(t, err, ErrMissingAppID)
	require.Equal(t, StateError, controller.State())
	require.Equal(t, 0, sdk.initCalls)
}

func TestNotLoggedInTriggersReloginOnce(t *testing.T) {
	sdk := &fakeSDK{loggedIn: false}
	api := &fakeAPI{}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))

	require.Equal(t, StateReloginPending, controller.State())
	require.True(t, controller.ReloginPending())
	require.Equal(t, 1, sdk.loginCalls)
	require.Equal(t, 0, api.callCount(), "no login request reaches the server")

	// Further triggers are suppressed while the redirect is pending.
	require.NoError(t, controller.Synchronize(context.Background()))
	require.Equal(t, 1, sdk.loginCalls)
	require.Equal(t, 0, api.callCount())
}

func TestExpiredAssertionRecovery(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1", "tok2"}}
	api := &fakeAPI{
		verify: func(assertion string) (*User, error) {
			if assertion == "tok1" {
				return nil, &APIError{Status: http.StatusUnauthorized, Body: `{"details":"IdToken expired"}`, URL: "/auth/line/verify"}
			}
			return &User{ID: "user-1"}, nil
		},
	}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))

	require.Equal(t, StateAuthenticated, controller.State())
	require.Equal(t, []string{"tok1", "tok2"}, api.calls)
	require.Empty(t, controller.LastError(), "recovery must stay invisible to the user")
}

func TestExpiredAssertionWithIdenticalRetryFallsToRelogin(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1", "tok1"}}
	api := &fakeAPI{
		verify: func(string) (*User, error) {
			return nil, &APIError{Status: http.StatusUnauthorized, Body: "IdToken expired"}
		},
	}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))

	require.Equal(t, StateReloginPending, controller.State())
	require.Equal(t, 1, sdk.loginCalls)
	require.Equal(t, 1, api.callCount(), "identical assertion is never retried")
}

func TestExpiredAssertionRetryIsBounded(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1", "tok2", "tok3"}}
	api := &fakeAPI{
		verify: func(string) (*User, error) {
			return nil, &APIError{Status: http.StatusUnauthorized, Body: "IdToken expired"}
		},
	}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	err := controller.Bootstrap(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, api.callCount(), "exactly one retry, then surface the failure")
	require.Equal(t, StateError, controller.State())
	require.NotEmpty(t, controller.LastError())
}

func TestOtherServerErrorsAreNotRetried(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1", "tok2"}}
	api := &fakeAPI{
		verify: func(string) (*User, error) {
			return nil, &APIError{Status: http.StatusInternalServerError, Body: "boom"}
		},
	}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	err := controller.Bootstrap(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, api.callCount())
	require.Equal(t, StateError, controller.State())
}

func TestConcurrentSynchronizeRunsOnce(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	api := &fakeAPI{delay: 50 * time.Millisecond}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.sdk.Init(context.Background(), "app-1"))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = controller.Synchronize(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, 1, api.callCount(), "overlapping triggers must collapse into one login call")
}

func TestSynchronizeTimeout(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	api := &fakeAPI{delay: time.Second}
	controller := NewController(Config{AppID: "app-1", SyncTimeout: 20 * time.Millisecond}, Dependencies{
		SDK:    sdk,
		Loader: &fakeLoader{available: true},
		API:    api,
	})
	defer controller.Close()

	err := controller.Synchronize(context.Background())
	require.Error(t, err)
	require.Equal(t, "session synchronization timed out", controller.LastError())

	// The in-flight flag must be reset so a later attempt can run.
	api.delay = 0
	require.NoError(t, controller.Synchronize(context.Background()))
	require.Equal(t, StateAuthenticated, controller.State())
}

func TestRefreshTickSkippedWhenHidden(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	api := &fakeAPI{}
	hidden := false
	controller := NewController(Config{AppID: "app-1"}, Dependencies{
		SDK:        sdk,
		Loader:     &fakeLoader{available: true},
		API:        api,
		Visibility: VisibilityFunc(func() bool { return hidden }),
	})
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))
	before := api.callCount()

	hidden = true
	controller.refreshTick()
	require.Equal(t, before, api.callCount())

	hidden = false
	controller.refreshTick()
	require.Equal(t, before+1, api.callCount())
}

func TestRefreshStopsWhenProviderSessionLost(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	api := &fakeAPI{}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))
	before := api.callCount()

	sdk.mu.Lock()
	sdk.loggedIn = false
	sdk.mu.Unlock()

	controller.refreshTick()
	require.Equal(t, before, api.callCount())
}

func TestLogout(t *testing.T) {
	sdk := &fakeSDK{loggedIn: true, tokens: []string{"tok1"}}
	api := &fakeAPI{}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))
	require.NoError(t, controller.Logout(context.Background()))

	require.Equal(t, 1, sdk.logoutCalls)
	require.Equal(t, 1, api.logoutCalls)
	require.Nil(t, controller.User())
	require.Equal(t, StateIdle, controller.State())
}

func TestLogoutAlwaysCallsServer(t *testing.T) {
	sdk := &fakeSDK{loggedIn: false}
	api := &fakeAPI{}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Logout(context.Background()))
	require.Equal(t, 0, sdk.logoutCalls)
	require.Equal(t, 1, api.logoutCalls)
}

func TestReinitializeClearsReloginPending(t *testing.T) {
	sdk := &fakeSDK{loggedIn: false}
	api := &fakeAPI{}
	controller := newTestController(sdk, &fakeLoader{available: true}, api)
	defer controller.Close()

	require.NoError(t, controller.Bootstrap(context.Background()))
	require.True(t, controller.ReloginPending())

	// The redirect completed out of band; the user is now logged in.
	sdk.mu.Lock()
	sdk.loggedIn = true
	sdk.tokens = []string{"tok1"}
	sdk.mu.Unlock()

	require.NoError(t, controller.Reinitialize(context.Background()))
	require.Equal(t, StateAuthenticated, controller.State())
	require.False(t, controller.ReloginPending())
}

func TestDiagnosticBufferIsBounded(t *testing.T) {
	buffer := newDiagBuffer(4, nil)
	for i := 0; i < 10; i++ {
		buffer.addf("line %d", i)
	}
	lines := buffer.snapshot()
	require.Len(t, lines, 4)
	require.Equal(t, "line 6", lines[0].Message)
	require.Equal(t, "line 9", lines[3].Message)
}
