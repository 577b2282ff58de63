package model

import (
	"fmt"
	"strings"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is the error body returned by the auth and recipe backends.
// Both backends put the human text in "message"; some add "error" and a
// "banned" flag for restricted accounts.
type APIError struct {
	Code      ErrorCode    `json:"code,omitempty"`
	Message   string       `json:"message"`
	ErrorText string       `json:"error,omitempty"`
	Banned    bool         `json:"banned,omitempty"`
	Details   []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Text()
	if e.Code == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Text returns the most specific human-readable message in the body.
func (e *APIError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorText
}

// MentionsBan reports whether the body flags or describes a restricted account.
func (e *APIError) MentionsBan() bool {
	if e.Banned {
		return true
	}
	return MentionsBan(e.Text())
}

// MentionsBan reports whether a message describes a banned or suspended account.
func MentionsBan(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "banned") || strings.Contains(m, "suspended")
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError is returned before any network call when form input is
// incomplete or inconsistent.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with optional field details.
func NewValidationError(msg string, details ...FieldError) *ValidationError {
	return &ValidationError{Message: msg, Fields: details}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s", e.Entity, e.From, e.To)
}
