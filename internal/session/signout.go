package session

import (
	"context"
	"time"

	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/internal/nav"
	"github.com/me/gochef/pkg/model"
)

// SignOut ends the session on request of the user: it cancels in-flight
// calls, arms the navigation guard, tells the server (best effort), clears
// local state and returns to the sign-in view. It only starts from the
// authenticated state, so calls made while signed out or while a sign-out is
// already running are no-ops.
func (c *Controller) SignOut(ctx context.Context) {
	if c.transitionFrom(model.SessionAuthenticated, model.SessionSigningOut) != nil {
		return
	}
	n := c.deps.Pending.CancelPendingRequests()
	c.deps.Bus.Publish(events.Event{Name: events.PrepareForLogout, Source: Source})

	if err := c.deps.API.Logout(ctx); err != nil {
		c.logger.Info("server logout failed, continuing", "error", err)
	}

	c.finishSignOut(ctx, "", n)
	c.deps.Router.Navigate(nav.RouteSignIn)
}

// ForceSignOut ends the session without calling the server, whose token is
// presumed invalid already. reason is one of the events.Reason* values.
func (c *Controller) ForceSignOut(ctx context.Context, reason string) {
	if !c.beginSignOut() {
		return
	}
	n := c.deps.Pending.CancelPendingRequests()
	c.deps.Bus.Publish(events.Event{Name: events.PrepareForLogout, Source: Source, Reason: reason})
	c.finishSignOut(ctx, reason, n)

	switch reason {
	case events.ReasonBanned:
		c.deps.Tokens.SetSessionFlag(ctx, auth.KeyAccountBanned, MsgBanned)
		c.deps.Toasts.Show(MsgBanned, model.ToastError, BanToastDuration)
	case events.ReasonRevoked:
		c.deps.Toasts.Info(MsgSignedOut)
	default:
		c.deps.Toasts.Error(httpclient.MsgSessionExpired)
	}

	c.after(c.cfg.RedirectDelay, func() {
		if c.deps.Router.Current() != nav.RouteSignIn {
			c.deps.Router.Navigate(nav.RouteSignIn)
		}
	})
}

// beginSignOut claims the signing-out state from any other state. It reports
// false when a sign-out is already underway.
func (c *Controller) beginSignOut() bool {
	return c.transition(model.SessionSigningOut) == nil
}

func (c *Controller) finishSignOut(ctx context.Context, reason string, cancelled int) {
	uid := c.userID(ctx)
	c.deps.Tokens.ClearAuth(ctx)
	if err := c.transition(model.SessionAnonymous); err != nil {
		c.logger.Warn("finish sign-out", "error", err)
	}
	c.mu.Lock()
	c.lastRefresh = time.Time{}
	c.lastCheckAuth = time.Time{}
	c.mu.Unlock()

	c.logger.Info("signed out", "reason", reason, "cancelled_requests", cancelled)
	c.deps.Bus.Publish(events.Event{
		Name:   events.AuthStateChanged,
		Action: events.ActionLogout,
		Reason: reason,
		Source: Source,
		UserID: uid,
	})
}

func (c *Controller) userID(ctx context.Context) string {
	if u := c.deps.Tokens.User(ctx); u != nil {
		return u.ID
	}
	return ""
}

// handleAuthEvent reacts to forced sign-outs raised by the HTTP layer or a
// peer process.
func (c *Controller) handleAuthEvent(ev events.Event) {
	if ev.Action != events.ActionLogout || (ev.Source == Source && ev.Origin == "") {
		return
	}
	if ev.Origin != "" && ev.UserID != c.userID(c.context()) {
		return
	}
	if c.State() == model.SessionAnonymous {
		if _, ok := c.deps.Tokens.Token(c.context()); !ok {
			return
		}
	}
	reason := ev.Reason
	if reason == "" {
		reason = events.ReasonRevoked
	}
	c.logger.Info("forced sign-out", "reason", reason, "source", ev.Source, "remote", ev.Origin != "")
	c.ForceSignOut(c.context(), reason)
}
