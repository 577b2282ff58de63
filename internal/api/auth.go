package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/pkg/model"
)

const (
	// DefaultStatusTTL is how long an account status probe is reused per identifier.
	DefaultStatusTTL = 5 * time.Minute
	// DefaultSignInRetryDelay is the pause before the single sign-in retry.
	DefaultSignInRetryDelay = time.Second
)

// Auth calls the auth backend.
type Auth struct {
	d          Doer
	retryDelay time.Duration
	statusTTL  time.Duration
	now        func() time.Time
	status     *ttlCache[*model.StatusResponse]
	logger     *slog.Logger
}

// AuthOption configures Auth.
type AuthOption func(*Auth)

// WithRetryDelay overrides the pause before retrying a failed sign-in.
func WithRetryDelay(d time.Duration) AuthOption {
	return func(a *Auth) { a.retryDelay = d }
}

// WithStatusTTL overrides how long status probes are cached.
func WithStatusTTL(ttl time.Duration) AuthOption {
	return func(a *Auth) { a.statusTTL = ttl }
}

// WithAuthClock injects the clock used by the status cache.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Auth) { a.now = now }
}

// NewAuth creates an Auth client over d.
func NewAuth(d Doer, logger *slog.Logger, opts ...AuthOption) *Auth {
	a := &Auth{
		d:          d,
		retryDelay: DefaultSignInRetryDelay,
		statusTTL:  DefaultStatusTTL,
		now:        time.Now,
		logger:     logger.With("component", "api.auth"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.status = newTTLCache[*model.StatusResponse](a.statusTTL, a.now)
	return a
}

// SignIn exchanges credentials for a token and profile. A transport failure
// or a 503/504 is retried once after a short pause.
func (a *Auth) SignIn(ctx context.Context, req model.SignInRequest) (*model.AuthResponse, error) {
	var (
		resp *httpclient.Response
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		resp, err = a.d.Do(ctx, &httpclient.Request{Method: http.MethodPost, Path: Prefix + "/auth/signin", Body: req})
		if err == nil || attempt == 1 || !retryableSignIn(err) {
			break
		}
		a.logger.Info("sign-in unavailable, retrying", "after", a.retryDelay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	if err != nil {
		return nil, err
	}
	ar, err := model.NormalizeAuthResponse(resp.Body, resp.Header)
	if err != nil {
		return nil, fmt.Errorf("decode sign-in reply: %w", err)
	}
	return ar, nil
}

func retryableSignIn(err error) bool {
	if httpclient.IsCancel(err) {
		return false
	}
	if httpclient.IsNetwork(err) {
		return true
	}
	switch httpclient.StatusCode(err) {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// SignUp registers a new account. The reply is informational; registration
// never signs the user in.
func (a *Auth) SignUp(ctx context.Context, req model.SignUpRequest) (*model.AuthResponse, error) {
	resp, err := a.d.Do(ctx, &httpclient.Request{Method: http.MethodPost, Path: Prefix + "/auth/signup", Body: req})
	if err != nil {
		return nil, err
	}
	ar, err := model.NormalizeAuthResponse(resp.Body, resp.Header)
	if err != nil {
		return nil, fmt.Errorf("decode sign-up reply: %w", err)
	}
	return ar, nil
}

// Logout tells the server to end the session.
func (a *Auth) Logout(ctx context.Context) error {
	return call(ctx, a.d, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// ErrNoProfile is returned when the profile reply carries no user.
var ErrNoProfile = errors.New("profile reply has no user")

// Profile fetches the signed-in user's profile.
func (a *Auth) Profile(ctx context.Context) (*model.User, error) {
	resp, err := a.d.Do(ctx, &httpclient.Request{Method: http.MethodGet, Path: Prefix + "/profile"})
	if err != nil {
		return nil, err
	}
	ar, err := model.NormalizeAuthResponse(resp.Body, nil)
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if ar.User == nil {
		return nil, ErrNoProfile
	}
	return ar.User, nil
}

// CheckStatus asks whether identifier's account is banned. Replies are
// reused for the status TTL.
func (a *Auth) CheckStatus(ctx context.Context, identifier string) (*model.StatusResponse, error) {
	if st, ok := a.status.get(identifier); ok {
		return st, nil
	}
	var st model.StatusResponse
	if err := call(ctx, a.d, http.MethodGet, "/auth/check-status", url.Values{"identifier": {identifier}}, nil, &st); err != nil {
		return nil, err
	}
	a.status.put(identifier, &st)
	return &st, nil
}

// ForgetStatus drops any cached status probe, e.g. after sign-out.
func (a *Auth) ForgetStatus() {
	a.status.clear()
}

// UpdateUsername changes the username after re-checking the password.
func (a *Auth) UpdateUsername(ctx context.Context, req model.UpdateUsernameRequest) error {
	return call(ctx, a.d, http.MethodPost, "/user/update-username", nil, req, nil)
}

// UpdatePassword changes the password.
func (a *Auth) UpdatePassword(ctx context.Context, req model.UpdatePasswordRequest) error {
	return call(ctx, a.d, http.MethodPost, "/user/update-password", nil, req, nil)
}
