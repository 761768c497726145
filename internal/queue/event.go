// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer for them.
package queue

import "time"

// PasswordResetQueue is the durable queue carrying reset mail requests.
const PasswordResetQueue = "auth.password_reset"

// PasswordResetRequested is published when an active user asks for a
// password reset. It contains everything the mail system needs to send the
// link without querying the primary database. Token is the raw single-use
// reset token; only its hash is stored by the auth service.
type PasswordResetRequested struct {
	UserID      uint64    `json:"user_id"`
	Email       string    `json:"email"`
	Token       string    `json:"token"`
	ResetURL    string    `json:"reset_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequestedAt time.Time `json:"requested_at"`
	RequestID   string    `json:"request_id,omitempty"`
}
