package service

import (
	"errors"
	"strings"
	"time"
)

// Errors returned by AuthService. Handlers map them to HTTP statuses; the
// messages of the authentication errors are deliberately generic.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotFound       = errors.New("user not found")
)

// FieldError is one field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the field-level problems of a request. It is
// safe to show to the client.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// errOrNil returns e only when it holds at least one problem.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalidField(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// PasswordPolicyError lists the policy rules a new password violates.
// errors.Is(err, ErrWeakPassword) holds for it.
type PasswordPolicyError struct {
	Field      string
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Violations, ", ")
}

func (e *PasswordPolicyError) Unwrap() error { return ErrWeakPassword }

// LoginFailure describes a rejected login. It unwraps to
// ErrInvalidCredentials and prints the same generic message whatever the
// reason; UserID (zero for unknown emails) and At are exposed for rate
// limiting and lockout middleware.
type LoginFailure struct {
	UserID uint64
	At     time.Time
	Reason string // unknown_email, bad_password or inactive; never sent to clients
}

func (e *LoginFailure) Error() string { return ErrInvalidCredentials.Error() }

func (e *LoginFailure) Unwrap() error { return ErrInvalidCredentials }
