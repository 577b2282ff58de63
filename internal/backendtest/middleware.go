package backendtest

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/me/gochef/pkg/model"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAccount   ctxKey = "account"
)

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware keeps the client's X-Request-ID or makes one up.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = requestID()
		}
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recordMiddleware logs each request and counts it under its route pattern.
func (b *Backend) recordMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			b.arrived(r)

			next.ServeHTTP(sw, r)

			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			b.count(r.Method + " " + pattern)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the push endpoint upgrade through the recorder.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// faultMiddleware applies injected delays and failures by request path.
func (b *Backend) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delay, status := b.faultFor(r.URL.Path)
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-r.Context().Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if status != 0 {
			respondMessage(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// xsrfMiddleware issues the XSRF cookie on reads and, when enforced,
// requires mutating calls to echo it in the header.
func (b *Backend) xsrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := r.Cookie(CookieXSRF); err != nil {
				http.SetCookie(w, &http.Cookie{Name: CookieXSRF, Value: b.xsrf, Path: "/"})
			}
		default:
			if b.requireXSRF {
				c, err := r.Cookie(CookieXSRF)
				h := r.Header.Get(HeaderXSRF)
				if err != nil || h == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(h)) != 1 {
					respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: "Invalid CSRF token"})
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

var (
	errNoBearer      = errors.New("missing bearer token")
	errUnknownUser   = errors.New("unknown user")
	errTokenRevoked  = errors.New("token revoked")
	errSigningMethod = errors.New("unexpected signing method")
)

// authMiddleware verifies the bearer token and loads the account. Banned
// accounts get a 403 carrying the banned flag.
func (b *Backend) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := b.authenticate(r)
		if err != nil {
			b.logger.Debug("rejecting request", "path", r.URL.Path, "error", err)
			respondError(w, http.StatusUnauthorized, &model.APIError{Code: model.ErrUnauthorized, Message: "Unauthorized"})
			return
		}
		if acct.banned() {
			respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: MsgAccountBanned, Banned: true})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAccount, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (b *Backend) authenticate(r *http.Request) (*account, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return nil, errNoBearer
	}
	return b.verify(strings.TrimSpace(raw[7:]))
}

func (b *Backend) verify(raw string) (*account, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return b.secret, nil
	}, jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, err
	}
	acct := b.accountByID(claims.Subject)
	if acct == nil {
		return nil, errUnknownUser
	}
	if claims.Version != acct.tokenVersion() {
		return nil, errTokenRevoked
	}
	return acct, nil
}

func accountFromContext(ctx context.Context) *account {
	a, _ := ctx.Value(ctxKeyAccount).(*account)
	return a
}
