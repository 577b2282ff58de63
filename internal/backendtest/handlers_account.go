package backendtest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/me/gochef/pkg/model"
)

// adminMiddleware lets only administrators through. It runs after
// authMiddleware.
func (b *Backend) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := accountFromContext(r.Context()).snapshot()
		if !u.IsAdmin() {
			respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleListUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	accts := make([]*account, 0, len(b.accounts))
	for i := 1; i <= b.nextID; i++ {
		if a, ok := b.accounts[strconv.Itoa(i)]; ok {
			accts = append(accts, a)
		}
	}
	b.mu.Unlock()

	users := make([]model.User, 0, len(accts))
	for _, a := range accts {
		users = append(users, a.snapshot())
	}
	respondOK(w, users)
}

func (b *Backend) handleSetRole(w http.ResponseWriter, r *http.Request) {
	target := b.accountByID(chi.URLParam(r, "id"))
	if target == nil {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "user not found"})
		return
	}
	raw := r.URL.Query().Get("role")
	if raw == "" {
		var req model.RoleUpdateRequest
		if err := decodeBody(r, &req); err == nil {
			raw = string(req.Role)
		}
	}
	role, ok := model.NormalizeRole(raw)
	if !ok {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "role must be user or admin"})
		return
	}
	target.mu.Lock()
	target.user.Role = role
	id := target.user.ID
	target.mu.Unlock()
	b.notify(id, pushMessage{Type: "role-changed", Role: string(role)})
	respondOK(w, model.ActionResult{Success: true, Message: "Role updated to " + string(role)})
}

func (b *Backend) handleToggleBan(w http.ResponseWriter, r *http.Request) {
	self := accountFromContext(r.Context())
	target := b.accountByID(chi.URLParam(r, "id"))
	if target == nil {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "user not found"})
		return
	}
	if target == self {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "You cannot ban your own account"})
		return
	}
	target.mu.Lock()
	target.user.Banned = !target.user.Banned
	banned, id, name := target.user.Banned, target.user.ID, target.user.Username
	target.mu.Unlock()

	if !banned {
		respondOK(w, model.ActionResult{Success: true, Message: "User " + name + " unbanned"})
		return
	}
	b.notify(id, pushMessage{Type: "banned", Message: MsgAccountBanned})
	respondOK(w, model.ActionResult{Success: true, Message: "User " + name + " banned"})
}

func (b *Backend) handleContact(w http.ResponseWriter, r *http.Request) {
	var form model.ContactForm
	if err := decodeBody(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request body"})
		return
	}
	if err := form.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: err.Error()})
		return
	}
	b.mu.Lock()
	b.contacts = append(b.contacts, form)
	b.mu.Unlock()
	respondOK(w, model.ActionResult{Success: true, Message: "Thank you for your message. We will get back to you soon."})
}

// requireVerification marks acct unverified and issues its email token,
// replacing any earlier one.
func (b *Backend) requireVerification(acct *account) string {
	tok := uuid.NewString()
	acct.mu.Lock()
	acct.user.Verified = false
	id := acct.user.ID
	acct.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for old, owner := range b.verifyTokens {
		if owner == id {
			delete(b.verifyTokens, old)
		}
	}
	b.verifyTokens[tok] = id
	return tok
}

func (b *Backend) handleVerify(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	b.mu.Lock()
	id, ok := b.verifyTokens[tok]
	delete(b.verifyTokens, tok)
	b.mu.Unlock()

	acct := b.accountByID(id)
	if !ok || acct == nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "Invalid or expired verification link"})
		return
	}
	acct.mu.Lock()
	acct.user.Verified = true
	acct.mu.Unlock()
	respondOK(w, model.ActionResult{Success: true, Message: "Email verified. You can now sign in."})
}

func (b *Backend) handleVerificationStatus(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	acct := b.accountByName(email)
	if acct == nil {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "user not found"})
		return
	}
	u := acct.snapshot()
	respondOK(w, model.VerificationStatus{Email: u.Email, Verified: u.Verified, VerificationPending: !u.Verified})
}

func (b *Backend) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request body"})
		return
	}
	acct := b.accountByName(strings.TrimSpace(req.Email))
	if acct == nil {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "user not found"})
		return
	}
	if acct.snapshot().Verified {
		respondOK(w, model.ActionResult{Success: true, Message: "Email already verified"})
		return
	}
	b.requireVerification(acct)
	respondOK(w, model.ActionResult{Success: true, Message: "Verification email sent"})
}

// VerificationToken returns the unredeemed verification token for email,
// or "".
func (b *Backend) VerificationToken(email string) string {
	acct := b.accountByName(email)
	if acct == nil {
		return ""
	}
	id := acct.snapshot().ID
	b.mu.Lock()
	defer b.mu.Unlock()
	for tok, owner := range b.verifyTokens {
		if owner == id {
			return tok
		}
	}
	return ""
}

// ContactMessages returns every contact form received.
func (b *Backend) ContactMessages() []model.ContactForm {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ContactForm(nil), b.contacts...)
}
