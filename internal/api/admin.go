package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/me/gochef/pkg/model"
)

// ErrNotAdmin is returned before any call when the signed-in user is not an
// administrator.
var ErrNotAdmin = errors.New("admin access required")

// Admin manages accounts. Every call checks the cached role first so a
// regular user never sends an admin request.
type Admin struct {
	d      Doer
	user   func(context.Context) *model.User
	logger *slog.Logger
}

// NewAdmin creates an Admin client. user returns the signed-in profile.
func NewAdmin(d Doer, user func(context.Context) *model.User, logger *slog.Logger) *Admin {
	return &Admin{d: d, user: user, logger: logger.With("component", "api.admin")}
}

func (a *Admin) authorize(ctx context.Context) error {
	if !a.user(ctx).IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

func userPath(id string) string {
	return "/admin/users/" + url.PathEscape(id)
}

// ListUsers returns every account.
func (a *Admin) ListUsers(ctx context.Context) ([]model.User, error) {
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	var out []model.User
	if err := call(ctx, a.d, http.MethodGet, "/admin/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetRole changes a user's role. The role travels both as a query
// parameter and in the body; backends read one or the other.
func (a *Admin) SetRole(ctx context.Context, userID, role string) (*model.ActionResult, error) {
	r, ok := model.NormalizeRole(role)
	if !ok {
		return nil, model.NewValidationError(fmt.Sprintf("unknown role %q", role), model.FieldError{Field: "role", Message: "must be user or admin"})
	}
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"role": {string(r)}}
	res, err := doAction(ctx, a.d, http.MethodPut, userPath(userID)+"/role", q, model.RoleUpdateRequest{Role: r})
	if err != nil {
		return nil, err
	}
	a.logger.Info("role updated", "user_id", userID, "role", r)
	return res, nil
}

// ToggleBan bans an active user or lifts the ban of a banned one.
func (a *Admin) ToggleBan(ctx context.Context, userID string) (*model.ActionResult, error) {
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	res, err := doAction(ctx, a.d, http.MethodPut, userPath(userID)+"/ban", nil, struct{}{})
	if err != nil {
		return nil, err
	}
	a.logger.Info("ban toggled", "user_id", userID, "message", res.Message)
	return res, nil
}

// doAction sends a call answered with an ActionResult and turns an
// unsuccessful reply into an error.
func doAction(ctx context.Context, d Doer, method, path string, q url.Values, in any) (*model.ActionResult, error) {
	var res model.ActionResult
	if err := call(ctx, d, method, path, q, in, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "request was not accepted"
		}
		return nil, errors.New(msg)
	}
	return &res, nil
}
