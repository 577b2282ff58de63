package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/pkg/model"
)

// UpdateUsername renames the signed-in account. On success only the cached
// profile's username changes; the profile is not re-fetched.
func (c *Controller) UpdateUsername(ctx context.Context, currentPassword, newUsername string) error {
	user := c.User(ctx)
	if user == nil {
		return ErrNotAuthenticated
	}
	newUsername = strings.TrimSpace(newUsername)
	var verr *model.ValidationError
	switch {
	case currentPassword == "":
		verr = model.NewValidationError("Current password is required", model.FieldError{Field: "currentPassword", Message: "required"})
	case newUsername == "":
		verr = model.NewValidationError("New username is required", model.FieldError{Field: "newUsername", Message: "required"})
	case len(newUsername) < 3:
		verr = model.NewValidationError("Username must be at least 3 characters", model.FieldError{Field: "newUsername", Message: "too short"})
	case newUsername == user.Username:
		verr = model.NewValidationError("New username must be different from the current one", model.FieldError{Field: "newUsername", Message: "unchanged"})
	}
	if verr != nil {
		c.deps.Toasts.Error(verr.Message)
		return verr
	}

	err := c.deps.API.UpdateUsername(ctx, model.UpdateUsernameRequest{CurrentPassword: currentPassword, NewUsername: newUsername})
	if err != nil {
		return c.accountError(err, MsgUsernameForbidden)
	}

	if cur := c.deps.Tokens.User(ctx); cur != nil {
		cur.Username = newUsername
		c.deps.Tokens.SetUser(ctx, cur)
	}
	c.deps.Toasts.Success(MsgUsernameUpdated)
	return nil
}

// UpdatePassword changes the account password.
func (c *Controller) UpdatePassword(ctx context.Context, currentPassword, newPassword string) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	var verr *model.ValidationError
	switch {
	case currentPassword == "":
		verr = model.NewValidationError("Current password is required", model.FieldError{Field: "currentPassword", Message: "required"})
	case len(newPassword) < 6:
		verr = model.NewValidationError("Password must be at least 6 characters", model.FieldError{Field: "newPassword", Message: "too short"})
	case newPassword == currentPassword:
		verr = model.NewValidationError("New password must be different from the current one", model.FieldError{Field: "newPassword", Message: "unchanged"})
	}
	if verr != nil {
		c.deps.Toasts.Error(verr.Message)
		return verr
	}

	err := c.deps.API.UpdatePassword(ctx, model.UpdatePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword})
	if err != nil {
		return c.accountError(err, "")
	}
	c.deps.Toasts.Success(MsgPasswordUpdated)
	return nil
}

// accountError toasts a failed account change. A 403 is replaced by
// forbidden when set.
func (c *Controller) accountError(err error, forbidden string) error {
	if httpclient.IsCancel(err) {
		return err
	}
	var he *httpclient.Error
	if forbidden != "" && errors.As(err, &he) && he.Status == http.StatusForbidden {
		out := *he
		out.FriendlyMessage = forbidden
		err = &out
	}
	c.deps.Toasts.Error(httpclient.FriendlyMessage(err))
	return err
}
