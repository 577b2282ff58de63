package session

import (
	"context"
	"strings"
	"time"

	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/internal/nav"
)

// Refresh re-reads the profile unless one was fetched within the refresh
// cooldown. It reports whether a network call was made.
func (c *Controller) Refresh(ctx context.Context) (bool, error) {
	if !c.IsAuthenticated() {
		return false, nil
	}
	if !c.claim(&c.lastRefresh, c.cfg.RefreshCooldown) {
		return false, nil
	}
	return true, c.revalidate(ctx)
}

// CheckAuth is the stronger check run on route changes. A locally invalid
// token forces a sign-out with no network call; otherwise the profile is
// re-read at most once per check-auth cooldown.
func (c *Controller) CheckAuth(ctx context.Context) (bool, error) {
	if !c.IsAuthenticated() {
		return false, ErrNotAuthenticated
	}
	if !c.deps.Validator.IsValid(ctx) {
		c.ForceSignOut(ctx, events.ReasonExpired)
		return false, ErrNotAuthenticated
	}
	if !c.claim(&c.lastCheckAuth, c.cfg.CheckAuthCooldown) {
		return false, nil
	}
	c.mu.Lock()
	c.lastRefresh = c.now()
	c.mu.Unlock()
	return true, c.revalidate(ctx)
}

// OnFocus is called when the user returns to the client.
func (c *Controller) OnFocus(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Debug("refresh on focus", "error", err)
	}
}

// claim records now in *last and reports true if the previous value is at
// least cooldown old.
func (c *Controller) claim(last *time.Time, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !last.IsZero() && now.Sub(*last) < cooldown {
		return false
	}
	*last = now
	return true
}

// revalidate fetches the profile and applies it: a ban ends the session, a
// role change is announced, anything else refreshes the cached profile.
func (c *Controller) revalidate(ctx context.Context) error {
	user, err := c.deps.API.Profile(ctx)
	if err != nil {
		if httpclient.IsCancel(err) {
			return nil
		}
		if httpclient.IsBanned(err) {
			c.ForceSignOut(ctx, events.ReasonBanned)
			return ErrBanned
		}
		return err
	}
	if !c.IsAuthenticated() {
		return nil
	}
	if user.Banned {
		c.ForceSignOut(ctx, events.ReasonBanned)
		return ErrBanned
	}

	prev := c.deps.Tokens.User(ctx)
	c.deps.Tokens.SetUser(ctx, user)
	if prev != nil && !strings.EqualFold(string(prev.Role), string(user.Role)) {
		c.logger.Info("role changed", "from", prev.Role, "to", user.Role)
		c.deps.Bus.Publish(events.Event{
			Name:         events.UserRoleChanged,
			Source:       Source,
			PreviousRole: string(prev.Role),
			NewRole:      string(user.Role),
		})
		c.deps.Bus.Publish(events.Event{
			Name:         events.AuthStateChanged,
			Action:       events.ActionRoleChanged,
			Source:       Source,
			PreviousRole: string(prev.Role),
			NewRole:      string(user.Role),
		})
	}
	return nil
}

// CheckBanStatus polls the account status endpoint for the signed-in user.
func (c *Controller) CheckBanStatus(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return nil
	}
	user := c.deps.Tokens.User(ctx)
	if user == nil {
		return nil
	}
	ident := user.Username
	if ident == "" {
		ident = user.Email
	}
	st, err := c.deps.API.CheckStatus(ctx, ident)
	if err != nil {
		if httpclient.IsCancel(err) {
			return nil
		}
		return err
	}
	if st.Banned && c.IsAuthenticated() {
		c.ForceSignOut(ctx, events.ReasonBanned)
		return ErrBanned
	}
	return nil
}

// routeChanged runs after every navigation.
func (c *Controller) routeChanged(from, to string) {
	if from == nav.RouteSignIn && to != nav.RouteSignIn {
		c.deps.Tokens.ClearSessionFlag(c.context(), auth.KeyAccountBanned)
	}
	if !c.IsAuthenticated() {
		return
	}
	if _, err := c.CheckAuth(c.context()); err != nil {
		c.logger.Debug("check auth on navigation", "to", to, "error", err)
	}
}

// HandlePush applies a server-pushed session message.
func (c *Controller) HandlePush(ctx context.Context, msg PushMessage) {
	switch msg.Type {
	case PushBanned:
		if c.IsAuthenticated() {
			c.ForceSignOut(ctx, events.ReasonBanned)
		}
	case PushRevoked:
		if c.IsAuthenticated() {
			c.ForceSignOut(ctx, events.ReasonRevoked)
		}
	case PushRoleChanged:
		c.deps.Validator.Invalidate()
		if c.IsAuthenticated() {
			if err := c.revalidate(ctx); err != nil {
				c.logger.Debug("revalidate after role change", "error", err)
			}
		}
	default:
		c.logger.Debug("ignoring push message", "type", msg.Type)
	}
}
