package model

import "time"

// AuditEvent names a security-relevant action.
type AuditEvent string

const (
	AuditRegister            AuditEvent = "auth.register"
	AuditLoginSuccess        AuditEvent = "auth.login.success"
	AuditLoginFailure        AuditEvent = "auth.login.failure"
	AuditRefreshSuccess      AuditEvent = "auth.refresh.success"
	AuditRefreshFailure      AuditEvent = "auth.refresh.failure"
	AuditLogout              AuditEvent = "auth.logout"
	AuditPasswordChange      AuditEvent = "auth.password.change"
	AuditPasswordResetReq    AuditEvent = "auth.password.reset.request"
	AuditPasswordResetFinish AuditEvent = "auth.password.reset.confirm"
	AuditTokenRevoked        AuditEvent = "auth.token.revoked"
	AuditUserDeactivated     AuditEvent = "auth.user.deactivated"
	AuditProfileUpdate       AuditEvent = "auth.profile.update"
)

// AuditEntry is an append-only row of the `audit_entries` table.
// UserID is nil for events without a resolved account (e.g. a login
// attempt for an unknown email) and survives user deletion.
type AuditEntry struct {
	ID        uint64
	UserID    *uint64
	Event     AuditEvent
	Success   bool
	CreatedAt time.Time
	Metadata  map[string]any
}
