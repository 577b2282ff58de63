package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/me/gochef/pkg/model"
)

// Cancellation causes.
var (
	// ErrSuperseded cancels a request replaced by an identical newer one.
	ErrSuperseded = errors.New("request superseded by a newer identical request")
	// ErrCancelledAll cancels every pending request, e.g. on sign-out.
	ErrCancelledAll = errors.New("pending requests cancelled")
	// ErrNoValidAuth cancels a protected request before transmission.
	ErrNoValidAuth = errors.New("no valid authentication")
)

// User-facing messages.
const (
	MsgNetwork        = "Cannot connect to the server. Please check your internet connection."
	MsgInvalidLogin   = "Invalid username or password"
	MsgSessionExpired = "Your session has expired. Please sign in again."
	MsgForbidden      = "You do not have permission to perform this action."
	MsgNotFound       = "The requested resource was not found."
	MsgServer         = "A server error occurred. Please try again later."
	MsgLoggedOut      = "Logged out"
	MsgCancelled      = "Your request was cancelled. Please try again."
)

// Error is the single error shape every dispatcher returns.
type Error struct {
	// Op is "METHOD path".
	Op string

	// Status is the HTTP status, or 0 when no response arrived.
	Status int

	// Message is the server's own text when it sent one.
	Message string

	// FriendlyMessage is safe to show to the user.
	FriendlyMessage string

	Cancelled bool
	Network   bool
	Banned    bool

	Fields []model.FieldError
	Body   []byte
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Cancelled:
		return fmt.Sprintf("%s: cancelled: %v", e.Op, e.Err)
	case e.Network:
		return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCancel reports whether err is a cancellation rather than a failure.
func IsCancel(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Cancelled
	}
	return errors.Is(err, ErrSuperseded) || errors.Is(err, ErrCancelledAll) || errors.Is(err, ErrNoValidAuth)
}

// IsNetwork reports whether err means the server never answered.
func IsNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Network
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsBanned reports whether the server flagged the account as restricted.
func IsBanned(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Banned
}

// FriendlyMessage returns text suitable for a toast. Cancellations yield "".
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cancelled {
			return ""
		}
		if e.FriendlyMessage != "" {
			return e.FriendlyMessage
		}
		if e.Message != "" {
			return e.Message
		}
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// normalize turns a transport outcome into an *Error. It is pure: events and
// token changes belong to the response interceptors.
func normalize(c *Call, resp *Response, err error) *Error {
	e := &Error{Op: c.Method + " " + c.URL.Path, Err: err}

	if cause := c.cancelCause(); cause != nil {
		e.Cancelled = true
		e.Err = cause
		e.FriendlyMessage = ""
		return e
	}
	if errors.Is(err, ErrNoValidAuth) || errors.Is(err, ErrSuperseded) || errors.Is(err, ErrCancelledAll) {
		e.Cancelled = true
		return e
	}
	if resp == nil {
		e.Network = true
		e.FriendlyMessage = MsgNetwork
		return e
	}

	e.Status = resp.StatusCode
	e.Body = resp.Body
	var apiErr model.APIError
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &apiErr) == nil {
		e.Message = apiErr.Text()
		e.Banned = apiErr.MentionsBan()
		e.Fields = apiErr.Details
	}
	if e.Err == nil {
		e.Err = &StatusError{StatusCode: resp.StatusCode}
	}

	path := c.URL.Path
	switch {
	case isSignIn(path) && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden):
		e.FriendlyMessage = orDefault(e.Message, MsgInvalidLogin)
	case e.Status == http.StatusUnauthorized:
		e.FriendlyMessage = MsgSessionExpired
		if isAuthEndpoint(path) {
			e.FriendlyMessage = orDefault(e.Message, MsgSessionExpired)
		}
	case e.Status == http.StatusForbidden && isLogout(path):
		e.FriendlyMessage = MsgLoggedOut
	case e.Status == http.StatusForbidden:
		e.FriendlyMessage = MsgForbidden
		if e.Banned {
			e.FriendlyMessage = orDefault(e.Message, MsgForbidden)
		}
	case e.Status == http.StatusNotFound:
		e.FriendlyMessage = MsgNotFound
	case e.Status >= 500:
		e.FriendlyMessage = MsgServer
	default:
		e.FriendlyMessage = orDefault(e.Message, fmt.Sprintf("Request failed (%d %s)", e.Status, http.StatusText(e.Status)))
	}
	return e
}

// StatusError marks a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
