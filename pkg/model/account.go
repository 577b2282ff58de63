package model

import "strings"

// ActionResult is the reply of admin, contact and verification actions.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RoleUpdateRequest asks for a user's role to change.
type RoleUpdateRequest struct {
	Role UserRole `json:"role"`
}

// ContactForm is a message to the site operators.
type ContactForm struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// MaxContactMessage caps the length of a contact message.
const MaxContactMessage = 5000

// Validate checks the form the way the contact page does before sending.
func (f ContactForm) Validate() error {
	var fields []FieldError
	switch email := strings.TrimSpace(f.Email); {
	case email == "":
		fields = append(fields, FieldError{Field: "email", Message: "Email is required"})
	case !strings.Contains(email, "@"):
		fields = append(fields, FieldError{Field: "email", Message: "Email is invalid"})
	}
	if strings.TrimSpace(f.Subject) == "" {
		fields = append(fields, FieldError{Field: "subject", Message: "Subject is required"})
	}
	switch msg := strings.TrimSpace(f.Message); {
	case msg == "":
		fields = append(fields, FieldError{Field: "message", Message: "Message is required"})
	case len(msg) > MaxContactMessage:
		fields = append(fields, FieldError{Field: "message", Message: "Message is too long"})
	}
	if len(fields) == 0 {
		return nil
	}
	return NewValidationError(fields[0].Message, fields...)
}

// VerificationStatus reports whether an address has confirmed its account.
type VerificationStatus struct {
	Email               string `json:"email,omitempty"`
	Verified            bool   `json:"verified"`
	VerificationPending bool   `json:"verificationPending"`
	Message             string `json:"message,omitempty"`
}

// NormalizeRole maps the spellings backends use for roles onto UserRole.
// ok is false for anything that is neither a user nor an admin.
func NormalizeRole(role string) (UserRole, bool) {
	role = strings.TrimSpace(role)
	if IsAdminRole(role) {
		return RoleAdmin, true
	}
	if strings.TrimPrefix(strings.ToLower(role), "role_") == "user" {
		return RoleUser, true
	}
	return "", false
}
