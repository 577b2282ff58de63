package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/me/gochef/pkg/model"
)

// Verification confirms email addresses after sign-up.
type Verification struct {
	d Doer
}

// NewVerification creates a Verification client.
func NewVerification(d Doer) *Verification {
	return &Verification{d: d}
}

func requireEmail(email string) error {
	if !strings.Contains(email, "@") {
		return model.NewValidationError("Email is invalid", model.FieldError{Field: "email", Message: "Email is invalid"})
	}
	return nil
}

// Verify redeems the token from a verification email.
func (v *Verification) Verify(ctx context.Context, token string) (*model.ActionResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.NewValidationError("verification token is required", model.FieldError{Field: "token", Message: "required"})
	}
	return doAction(ctx, v.d, http.MethodGet, "/verification/verify/"+url.PathEscape(token), nil, nil)
}

// Status reports whether email has been verified.
func (v *Verification) Status(ctx context.Context, email string) (*model.VerificationStatus, error) {
	email = strings.TrimSpace(email)
	if err := requireEmail(email); err != nil {
		return nil, err
	}
	var st model.VerificationStatus
	if err := call(ctx, v.d, http.MethodGet, "/verification/status", url.Values{"email": {email}}, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Resend asks for another verification email.
func (v *Verification) Resend(ctx context.Context, email string) (*model.ActionResult, error) {
	email = strings.TrimSpace(email)
	if err := requireEmail(email); err != nil {
		return nil, err
	}
	return doAction(ctx, v.d, http.MethodPost, "/verification/resend", nil, map[string]string{"email": email})
}
