package model

import (
	"strings"
	"time"
)

// UserRole represents the role of a user on the recipe service.
type UserRole string

const (
	// RoleUser is a standard authenticated user.
	RoleUser UserRole = "user"
	// RoleAdmin can moderate recipes, comments and accounts.
	RoleAdmin UserRole = "admin"
)

// User is the cached profile of the signed-in account.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      UserRole  `json:"role,omitempty"`
	Banned    bool      `json:"banned,omitempty"`
	Verified  bool      `json:"verified,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// IsAdmin returns true if the user has an administrative role.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	return IsAdminRole(string(u.Role))
}

// IsAdminRole reports whether a raw role string names an administrator.
// Backends have emitted "ADMIN", "admin", "ROLE_ADMIN" and "administrator".
func IsAdminRole(role string) bool {
	r := strings.TrimPrefix(strings.ToLower(role), "role_")
	return r == "admin" || r == "administrator"
}
