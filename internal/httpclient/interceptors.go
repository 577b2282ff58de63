package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/pkg/model"
)

// Header and cookie names.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderXSRF      = "X-XSRF-TOKEN"
	CookieXSRF      = "XSRF-TOKEN"
)

// TokenSource is the token storage the interceptors read and write.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
	SetToken(ctx context.Context, token string)
	RemoveToken(ctx context.Context)
}

// Validity decides whether the stored token may be sent.
type Validity interface {
	IsValid(ctx context.Context) bool
}

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
}

// NewRequestID returns a short random correlation id.
func NewRequestID() string {
	return uuid.New().String()[:8]
}

// RequestID stamps X-Request-ID.
func RequestID() RequestInterceptor {
	return func(c *Call) error {
		c.RequestID = NewRequestID()
		c.Header.Set(HeaderRequestID, c.RequestID)
		return nil
	}
}

// CSRF copies the XSRF-TOKEN cookie into X-XSRF-TOKEN on state-changing calls.
func CSRF(jar http.CookieJar) RequestInterceptor {
	return func(c *Call) error {
		if jar == nil || isSafeMethod(c.Method) {
			return nil
		}
		for _, ck := range jar.Cookies(c.URL) {
			if ck.Name == CookieXSRF && ck.Value != "" {
				c.Header.Set(HeaderXSRF, ck.Value)
				break
			}
		}
		return nil
	}
}

// Fingerprint identifies duplicate calls: method, host and path, sorted
// query, and for non-GET calls a digest of the body.
func Fingerprint(c *Call) string {
	fp := c.Method + " " + c.URL.Host + c.URL.Path
	if q := c.URL.Query(); len(q) > 0 {
		fp += "?" + q.Encode()
	}
	if !isSafeMethod(c.Method) && len(c.Body) > 0 {
		sum := sha256.Sum256(c.Body)
		fp += "#" + hex.EncodeToString(sum[:8])
	}
	return fp
}

// Dedupe registers the call in reg, superseding an identical pending call.
func Dedupe(reg *Registry) RequestInterceptor {
	return func(c *Call) error {
		c.Fingerprint = Fingerprint(c)
		c.OnComplete(reg.Add(c.Fingerprint, c.cancel))
		return nil
	}
}

// Authorize attaches the bearer token. Protected calls, and logout, are
// cancelled with ErrNoValidAuth when the token is missing or invalid.
func Authorize(tokens TokenSource, valid Validity) RequestInterceptor {
	return func(c *Call) error {
		ctx := c.Context()
		if requiresValidToken(c.Method, c.URL.Path) {
			tok, ok := tokens.Token(ctx)
			if !ok || !valid.IsValid(ctx) {
				c.Cancel(ErrNoValidAuth)
				return ErrNoValidAuth
			}
			c.Header.Set("Authorization", "Bearer "+tok)
			return nil
		}
		if tok, ok := tokens.Token(ctx); ok {
			c.Header.Set("Authorization", "Bearer "+tok)
		}
		return nil
	}
}

// PersistToken stores a token returned by a successful call: from the body
// of auth endpoints unless the returned user is banned, otherwise from the
// Authorization response header.
func PersistToken(tokens TokenSource) ResponseInterceptor {
	return func(c *Call, resp *Response, err error) error {
		if err != nil || resp == nil {
			return err
		}
		ctx := c.Context()
		if isAuthEndpoint(c.URL.Path) && !isLogout(c.URL.Path) {
			ar, derr := model.NormalizeAuthResponse(resp.Body, resp.Header)
			if derr != nil {
				return nil
			}
			if ar.User != nil && ar.User.Banned {
				return nil
			}
			if ar.Token != "" {
				tokens.SetToken(ctx, ar.Token)
			}
			return nil
		}
		if tok := model.StripBearer(resp.Header.Get("Authorization")); tok != "" {
			tokens.SetToken(ctx, tok)
		}
		return nil
	}
}

// AuthFailures reacts to failed calls: transport failures and 5xx publish
// network-error and server-error; a 403 outside profile, logout and the
// public sign-in/up calls, or a 401 outside the auth API, removes the token
// and publishes a forced logout. A 403 from logout is treated as success.
func AuthFailures(tokens TokenSource, pub Publisher) ResponseInterceptor {
	return func(c *Call, resp *Response, err error) error {
		var e *Error
		if err == nil || !errors.As(err, &e) || e.Cancelled {
			return err
		}
		ctx := c.Context()
		path := c.URL.Path

		switch {
		case e.Network:
			pub.Publish(events.Event{Name: events.NetworkError, Message: MsgNetwork, Source: c.Dispatcher})

		case e.Status == http.StatusForbidden && isLogout(path):
			return nil

		case e.Status == http.StatusForbidden && !isProfile(path) && !IsPublic(c.Method, path):
			reason := events.ReasonForbidden
			if e.Banned {
				reason = events.ReasonBanned
			}
			tokens.RemoveToken(ctx)
			pub.Publish(events.Event{
				Name: events.AuthStateChanged, Action: events.ActionLogout,
				Reason: reason, Status: e.Status, Source: c.Dispatcher,
				Message: e.FriendlyMessage,
			})

		case e.Status == http.StatusUnauthorized && !isAuthEndpoint(path):
			tokens.RemoveToken(ctx)
			pub.Publish(events.Event{
				Name: events.AuthStateChanged, Action: events.ActionLogout,
				Reason: events.ReasonUnauthorized, Status: e.Status, Source: c.Dispatcher,
				Message: e.FriendlyMessage,
			})

		case e.Status >= 500:
			pub.Publish(events.Event{Name: events.ServerError, Status: e.Status, Message: MsgServer, Source: c.Dispatcher})
		}
		return err
	}
}

// Chain bundles the standard interceptors for a session-aware dispatcher.
type Chain struct {
	Tokens    TokenSource
	Validity  Validity
	Publisher Publisher
	Jar       http.CookieJar
	// CSRF enables the XSRF header copy; the recipe backend requires it.
	CSRF bool
}

// Options returns dispatcher options installing the chain in order:
// request id, CSRF, dedupe, authorize; then persist token, auth failures.
func (ch Chain) Options(reg *Registry) []Option {
	opts := []Option{
		WithRegistry(reg),
		WithRequestInterceptor(RequestID()),
	}
	if ch.Jar != nil {
		opts = append(opts, WithJar(ch.Jar))
	}
	if ch.CSRF {
		opts = append(opts, WithRequestInterceptor(CSRF(ch.Jar)))
	}
	opts = append(opts,
		WithRequestInterceptor(Dedupe(reg)),
		WithRequestInterceptor(Authorize(ch.Tokens, ch.Validity)),
		WithResponseInterceptor(PersistToken(ch.Tokens)),
		WithResponseInterceptor(AuthFailures(ch.Tokens, ch.Publisher)),
	)
	return opts
}
