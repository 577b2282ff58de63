package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/me/gochef/pkg/model"
)

// Contact submits messages to the site operators. It needs no session.
type Contact struct {
	d Doer
}

// NewContact creates a Contact client. d should reach the auth backend,
// which owns contact submissions.
func NewContact(d Doer) *Contact {
	return &Contact{d: d}
}

// Submit validates and sends form.
func (c *Contact) Submit(ctx context.Context, form model.ContactForm) (*model.ActionResult, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Subject = strings.TrimSpace(form.Subject)
	form.Message = strings.TrimSpace(form.Message)
	if err := form.Validate(); err != nil {
		return nil, err
	}
	return doAction(ctx, c.d, http.MethodPost, "/contact/submit", nil, form)
}
