package model

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AuthResponse is the canonical shape of a sign-in or sign-up reply.
// Backends have answered with several field spellings; NormalizeAuthResponse
// maps all of them here so nothing past the network boundary guesses.
type AuthResponse struct {
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the reply of the account status probe.
type StatusResponse struct {
	Banned  bool   `json:"banned"`
	Active  bool   `json:"active"`
	Message string `json:"message,omitempty"`
}

// SignInRequest is the body of a sign-in call.
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SignUpRequest is the body of a registration call.
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUsernameRequest changes the account's username.
type UpdateUsernameRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewUsername     string `json:"newUsername"`
}

// UpdatePasswordRequest changes the account's password.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

var tokenFields = []string{"token", "access_token", "accessToken", "authToken", "jwt"}

// StripBearer removes a transport "Bearer" scheme word and surrounding
// whitespace. A bare scheme with no credential yields "".
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	const scheme = "bearer"
	if len(token) < len(scheme) || !strings.EqualFold(token[:len(scheme)], scheme) {
		return token
	}
	rest := token[len(scheme):]
	if rest == "" {
		return ""
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return token
	}
	return strings.TrimSpace(rest)
}

// NormalizeAuthResponse decodes an auth reply body into the canonical shape.
// The token may appear under any known alias or, failing that, in the
// Authorization response header. The profile may be nested under "user" or
// "userData", or inlined at the top level.
func NormalizeAuthResponse(body []byte, header http.Header) (*AuthResponse, error) {
	out := &AuthResponse{}

	var raw map[string]json.RawMessage
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
	}

	for _, k := range tokenFields {
		if v, ok := raw[k]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				out.Token = StripBearer(s)
				break
			}
		}
	}
	if out.Token == "" && header != nil {
		out.Token = StripBearer(header.Get("Authorization"))
	}

	if v, ok := raw["message"]; ok {
		_ = json.Unmarshal(v, &out.Message)
	}

	for _, k := range []string{"user", "userData"} {
		if v, ok := raw[k]; ok && string(v) != "null" {
			var u User
			if err := json.Unmarshal(v, &u); err == nil {
				out.User = &u
				break
			}
		}
	}
	if out.User == nil {
		if _, hasName := raw["username"]; hasName {
			var u User
			if err := json.Unmarshal(body, &u); err == nil {
				out.User = &u
			}
		}
	}

	return out, nil
}
