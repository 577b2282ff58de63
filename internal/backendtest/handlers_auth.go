package backendtest

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/me/gochef/pkg/model"
)

func (b *Backend) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request body"})
		return
	}
	acct := b.accountByName(strings.TrimSpace(req.Identifier))
	if acct == nil || !acct.checkPassword(req.Password) {
		respondError(w, http.StatusUnauthorized, &model.APIError{Code: model.ErrUnauthorized, Message: "Invalid username or password"})
		return
	}
	if acct.banned() {
		respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: MsgAccountBanned, Banned: true})
		return
	}
	tok, err := b.sign(acct, b.tokenTTL)
	if err != nil {
		b.logger.Error("sign token", "error", err)
		respondError(w, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: "token error"})
		return
	}
	u := acct.snapshot()
	respondOK(w, map[string]any{"token": tok, "user": u, "message": "Signed in"})
}

func (b *Backend) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req model.SignUpRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request body"})
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "Username, email and a 6 character password are required"})
		return
	}
	if b.accountByName(req.Username) != nil || b.accountByName(req.Email) != nil {
		respondError(w, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: "Username or email already taken"})
		return
	}
	u := b.AddUser(req.Username, req.Email, req.Password, model.RoleUser)
	acct := b.accountByID(u.ID)
	b.requireVerification(acct)
	respondCreated(w, map[string]any{"message": "User registered successfully", "userData": acct.snapshot()})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	respondMessage(w, http.StatusOK, "Logged out")
}

func (b *Backend) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	ident := r.URL.Query().Get("identifier")
	acct := b.accountByName(ident)
	if acct == nil {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "user not found"})
		return
	}
	banned := acct.banned()
	st := model.StatusResponse{Banned: banned, Active: !banned}
	if banned {
		st.Message = MsgAccountBanned
	}
	respondOK(w, st)
}

func (b *Backend) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("username")
	if name == "" {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "username is required"})
		return
	}
	respondOK(w, map[string]bool{"available": b.accountByName(name) == nil})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	acct := accountFromContext(r.Context())
	respondOK(w, map[string]any{"user": acct.snapshot()})
}

func (b *Backend) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	acct := accountFromContext(r.Context())
	var req model.UpdateUsernameRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.NewUsername) == "" {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "new username is required"})
		return
	}
	if !acct.checkPassword(req.CurrentPassword) {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "Current password is incorrect"})
		return
	}
	if other := b.accountByName(req.NewUsername); other != nil && other != acct {
		respondError(w, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: "Username already taken"})
		return
	}
	acct.mu.Lock()
	acct.user.Username = req.NewUsername
	acct.mu.Unlock()
	respondMessage(w, http.StatusOK, "Username updated")
}

func (b *Backend) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	acct := accountFromContext(r.Context())
	var req model.UpdatePasswordRequest
	if err := decodeBody(r, &req); err != nil || len(req.NewPassword) < 6 {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "new password must be at least 6 characters"})
		return
	}
	if !acct.checkPassword(req.CurrentPassword) {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "Current password is incorrect"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: "hash error"})
		return
	}
	acct.mu.Lock()
	acct.hash = hash
	acct.mu.Unlock()
	respondMessage(w, http.StatusOK, "Password updated")
}
