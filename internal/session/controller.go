// Package session owns the client's sign-in state: it signs users in and
// out, re-validates the session in the background, watches for bans and
// reacts to forced sign-outs raised by the HTTP layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/config"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/internal/nav"
	"github.com/me/gochef/internal/toast"
	"github.com/me/gochef/pkg/model"
)

// Source marks events published by the controller itself.
const Source = "session"

// Sentinel errors.
var (
	ErrBanned           = errors.New("account is banned")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoToken          = errors.New("sign-in reply carried no token")
)

// User-facing messages.
const (
	MsgMissingCredentials = "Please enter both username/email and password"
	MsgBanned             = "Your account has been banned. Please contact support for more information."
	MsgSignUpSuccess      = "Registration successful! Please sign in."
	MsgSignUpFailed       = "Bad credentials"
	MsgSignedOut          = "You have been signed out."
	MsgUsernameForbidden  = "You are not allowed to change your username. Please contact an admin."
	MsgUsernameUpdated    = "Username updated successfully"
	MsgPasswordUpdated    = "Password updated successfully"
)

// Toast lifetimes that differ from the channel defaults.
const (
	BanToastDuration    = 15 * time.Second
	SignUpErrorDuration = 6 * time.Second
)

// AuthAPI is the slice of the auth backend the controller calls.
type AuthAPI interface {
	SignIn(ctx context.Context, req model.SignInRequest) (*model.AuthResponse, error)
	SignUp(ctx context.Context, req model.SignUpRequest) (*model.AuthResponse, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.User, error)
	CheckStatus(ctx context.Context, identifier string) (*model.StatusResponse, error)
	UpdateUsername(ctx context.Context, req model.UpdateUsernameRequest) error
	UpdatePassword(ctx context.Context, req model.UpdatePasswordRequest) error
}

// Canceller aborts every in-flight request.
type Canceller interface {
	CancelPendingRequests() int
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	API       AuthAPI
	Tokens    *auth.TokenStore
	Validator *auth.Validator
	Pending   Canceller
	Bus       *events.Bus
	Toasts    *toast.Channel
	Router    *nav.Router
}

// Controller is the session state machine. All fields behind mu are owned
// here; locks are never held across network calls or event publication.
type Controller struct {
	cfg    config.SessionConfig
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	after  func(d time.Duration, f func())
	push   *PushListener

	mu            sync.Mutex
	state         model.SessionState
	lastRefresh   time.Time
	lastCheckAuth time.Time
	onState       []func(from, to model.SessionState)

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	unsubs  []func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the clock used for cooldowns.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithAfterFunc injects the scheduler used for the delayed sign-in redirect.
func WithAfterFunc(fn func(d time.Duration, f func())) Option {
	return func(c *Controller) { c.after = fn }
}

// WithPush attaches a server-push listener started alongside the loops.
func WithPush(p *PushListener) Option {
	return func(c *Controller) { c.push = p }
}

// New creates an anonymous Controller. Call Restore and Start to bring it up.
func New(cfg config.SessionConfig, deps Deps, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "session"),
		now:     time.Now,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		state:   model.SessionAnonymous,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated reports whether a user is signed in.
func (c *Controller) IsAuthenticated() bool {
	return c.State().IsSignedIn()
}

// User returns the cached profile of the signed-in user.
func (c *Controller) User(ctx context.Context) *model.User {
	if !c.IsAuthenticated() {
		return nil
	}
	return c.deps.Tokens.User(ctx)
}

// IsBanned reports whether the stored profile or token claims flag a ban,
// or a ban notice is pending.
func (c *Controller) IsBanned(ctx context.Context) bool {
	if _, ok := c.deps.Tokens.SessionFlag(ctx, auth.KeyAccountBanned); ok {
		return true
	}
	return c.deps.Validator.IsBanned(ctx)
}

// BannedNotice returns the ban message kept for the sign-in view.
func (c *Controller) BannedNotice(ctx context.Context) (string, bool) {
	return c.deps.Tokens.SessionFlag(ctx, auth.KeyAccountBanned)
}

// TakeFlash returns and clears the one-shot message left for the next view.
func (c *Controller) TakeFlash(ctx context.Context) (string, bool) {
	msg, ok := c.deps.Tokens.SessionFlag(ctx, auth.KeyFlash)
	if ok {
		c.deps.Tokens.ClearSessionFlag(ctx, auth.KeyFlash)
	}
	return msg, ok
}

// OnStateChange registers fn to run after every transition.
func (c *Controller) OnStateChange(fn func(from, to model.SessionState)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// transition moves to `to` if allowed from the current state.
func (c *Controller) transition(to model.SessionState) error {
	return c.transitionFrom("", to)
}

// transitionFrom is transition that also requires the current state to be
// `from`. An empty from matches any state.
func (c *Controller) transitionFrom(from, to model.SessionState) error {
	c.mu.Lock()
	cur := c.state
	if (from != "" && cur != from) || !cur.CanTransitionTo(to) {
		c.mu.Unlock()
		return &model.InvalidTransitionError{Entity: "session", From: string(cur), To: string(to)}
	}
	c.state = to
	fns := append([]func(from, to model.SessionState){}, c.onState...)
	c.mu.Unlock()

	c.logger.Debug("session state", "from", cur, "to", to)
	for _, fn := range fns {
		fn(cur, to)
	}
	return nil
}

// Restore rebuilds the session from storage at startup. It succeeds only
// with a valid token and a cached profile; anything less clears auth.
func (c *Controller) Restore(ctx context.Context) bool {
	_, hasToken := c.deps.Tokens.Token(ctx)
	user := c.deps.Tokens.User(ctx)
	if hasToken && user != nil && !user.Banned && c.deps.Validator.IsValid(ctx) {
		if err := c.transition(model.SessionAuthenticated); err != nil {
			c.logger.Warn("restore", "error", err)
			return false
		}
		c.logger.Info("session restored", "user", user.Username)
		return true
	}
	if hasToken || user != nil {
		c.logger.Info("discarding stale session")
		c.deps.Tokens.ClearAuth(ctx)
	}
	return false
}

// SignIn authenticates with identifier and password.
func (c *Controller) SignIn(ctx context.Context, identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		var fields []model.FieldError
		if identifier == "" {
			fields = append(fields, model.FieldError{Field: "identifier", Message: "required"})
		}
		if password == "" {
			fields = append(fields, model.FieldError{Field: "password", Message: "required"})
		}
		c.deps.Toasts.Error(MsgMissingCredentials)
		return nil, model.NewValidationError(MsgMissingCredentials, fields...)
	}

	if err := c.transition(model.SessionAuthenticating); err != nil {
		return nil, err
	}

	ar, err := c.deps.API.SignIn(ctx, model.SignInRequest{Identifier: identifier, Password: password})
	if err != nil {
		c.transition(model.SessionAnonymous)
		if httpclient.IsCancel(err) {
			return nil, err
		}
		msg := httpclient.FriendlyMessage(err)
		if httpclient.IsBanned(err) || model.MentionsBan(msg) {
			c.rejectBanned(ctx, identifier)
			return nil, ErrBanned
		}
		c.deps.Toasts.Error(msg)
		return nil, err
	}

	if ar.User != nil && ar.User.Banned {
		c.transition(model.SessionAnonymous)
		c.rejectBanned(ctx, identifier)
		return nil, ErrBanned
	}
	if ar.Token == "" {
		c.transition(model.SessionAnonymous)
		c.deps.Toasts.Error("Sign in failed: no token received")
		return nil, ErrNoToken
	}

	c.deps.Tokens.SetToken(ctx, ar.Token)
	user := ar.User
	if user == nil {
		user, err = c.deps.API.Profile(ctx)
		if err != nil {
			c.deps.Tokens.ClearAuth(ctx)
			c.transition(model.SessionAnonymous)
			c.deps.Toasts.Error(httpclient.FriendlyMessage(err))
			return nil, fmt.Errorf("fetch profile after sign-in: %w", err)
		}
		if user.Banned {
			c.transition(model.SessionAnonymous)
			c.rejectBanned(ctx, identifier)
			return nil, ErrBanned
		}
	}
	c.deps.Tokens.SetUser(ctx, user)
	c.deps.Tokens.ClearSessionFlag(ctx, auth.KeyAccountBanned)

	now := c.now()
	c.mu.Lock()
	c.lastRefresh = now
	c.lastCheckAuth = now
	c.mu.Unlock()

	if err := c.transitionFrom(model.SessionAuthenticating, model.SessionAuthenticated); err != nil {
		// A forced sign-out raced the sign-in.
		c.deps.Tokens.ClearAuth(ctx)
		return nil, err
	}
	c.logger.Info("signed in", "user", user.Username)
	c.deps.Bus.Publish(events.Event{Name: events.AuthStateChanged, Action: events.ActionLogin, Source: Source})
	c.deps.Toasts.Success(fmt.Sprintf("Welcome back, %s!", user.Username))
	c.deps.Router.Navigate(nav.RouteHome)
	return user, nil
}

// rejectBanned handles a banned sign-in: no token survives and the notice
// is kept for the sign-in view.
func (c *Controller) rejectBanned(ctx context.Context, identifier string) {
	c.logger.Warn("banned account rejected", "identifier", identifier)
	c.deps.Tokens.RemoveToken(ctx)
	c.deps.Tokens.SetUser(ctx, nil)
	c.deps.Tokens.SetSessionFlag(ctx, auth.KeyAccountBanned, MsgBanned)
	c.deps.Toasts.Show(MsgBanned, model.ToastError, BanToastDuration)
}

// SignUp registers an account. It never signs the user in.
func (c *Controller) SignUp(ctx context.Context, username, email, password, confirm string) error {
	if err := validateSignUp(username, email, password, confirm); err != nil {
		c.deps.Toasts.Error(err.Error())
		return err
	}
	_, err := c.deps.API.SignUp(ctx, model.SignUpRequest{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	})
	if err != nil {
		if httpclient.IsCancel(err) {
			return err
		}
		msg := MsgSignUpFailed
		var he *httpclient.Error
		if errors.As(err, &he) && he.Message != "" {
			msg = he.Message
		}
		c.deps.Toasts.Show(msg, model.ToastError, SignUpErrorDuration)
		return err
	}
	c.deps.Tokens.SetSessionFlag(ctx, auth.KeyFlash, MsgSignUpSuccess)
	c.deps.Router.Navigate(nav.RouteSignIn)
	return nil
}

func validateSignUp(username, email, password, confirm string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	var fields []model.FieldError
	switch {
	case username == "":
		fields = append(fields, model.FieldError{Field: "username", Message: "Username is required"})
	case len(username) < 3:
		fields = append(fields, model.FieldError{Field: "username", Message: "Username must be at least 3 characters"})
	}
	switch {
	case email == "":
		fields = append(fields, model.FieldError{Field: "email", Message: "Email is required"})
	case !strings.Contains(email, "@"):
		fields = append(fields, model.FieldError{Field: "email", Message: "Email is invalid"})
	}
	switch {
	case password == "":
		fields = append(fields, model.FieldError{Field: "password", Message: "Password is required"})
	case len(password) < 6:
		fields = append(fields, model.FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if password != confirm {
		fields = append(fields, model.FieldError{Field: "confirmPassword", Message: "Passwords do not match"})
	}
	if len(fields) == 0 {
		return nil
	}
	return model.NewValidationError(fields[0].Message, fields...)
}
