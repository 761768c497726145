// Package service holds the business rules of the auth subsystem. It is the
// only layer that decides; repositories store and handlers translate.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/queue"
	"github.com/capecontrol/capecontrol-auth/internal/repository"
	"github.com/capecontrol/capecontrol-auth/internal/utils"
)

const (
	maxEmailLen   = 254
	maxProfileLen = 100
	maxPhoneLen   = 32
)

// Options are the tunable policies of the service.
type Options struct {
	BcryptCost    int
	Password      utils.PasswordPolicy
	ResetTTL      time.Duration
	RotateRefresh bool
	ResetLinkBase string
}

// Deps are the collaborators of AuthService. Notifier, Denylist and
// Earnings may be nil.
type Deps struct {
	Users    UserStore
	Tokens   TokenLedger
	Audit    AuditLog
	Earnings EarningsSource
	Issuer   *utils.Issuer
	Notifier ResetNotifier
	Denylist Denylist
	Logger   *slog.Logger
	Now      func() time.Time
}

// RequestMeta is the per-request context the handlers pass explicitly.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

func (m RequestMeta) device() model.DeviceMeta {
	return model.DeviceMeta{UserAgent: m.UserAgent, IP: m.IP}
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User    model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// RefreshResult is returned by Refresh. Refresh is nil unless rotation is
// enabled.
type RefreshResult struct {
	User    model.User
	Access  utils.AccessToken
	Refresh *utils.RefreshToken
}

// RegisterInput is the self-registration request.
type RegisterInput struct {
	Email    string
	Password string
	Role     string // CUSTOMER (default) or DEVELOPER
	Profile  model.Profile
}

// LogoutInput describes a bearer-authenticated logout.
type LogoutInput struct {
	UserID          uint64
	AccessTokenID   string
	AccessExpiresAt time.Time
	RefreshToken    string // optional; empty revokes every session
	AllSessions     bool
}

// AuthService orchestrates registration, login, refresh, logout, password
// reset and profile operations.
type AuthService struct {
	users    UserStore
	tokens   TokenLedger
	audit    AuditLog
	earnings EarningsSource
	issuer   *utils.Issuer
	notifier ResetNotifier
	denylist Denylist
	log      *slog.Logger
	now      func() time.Time
	opts     Options

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(d Deps, o Options) *AuthService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = 12
	}
	if o.ResetTTL <= 0 {
		o.ResetTTL = time.Hour
	}
	return &AuthService{
		users:    d.Users,
		tokens:   d.Tokens,
		audit:    d.Audit,
		earnings: d.Earnings,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		denylist: d.Denylist,
		log:      d.Logger.With("component", "auth"),
		now:      d.Now,
		opts:     o,
	}
}

// Register creates a CUSTOMER or DEVELOPER account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, rm RequestMeta) (AuthResult, error) {
	email := model.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	// Duplicate emails are reported before password problems.
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("lookup email: %w", err)
	}

	verr := &ValidationError{}
	role := model.RoleCustomer
	if strings.TrimSpace(in.Role) != "" {
		r, ok := model.ParseRole(in.Role)
		if !ok || r == model.RoleAdmin {
			verr.add("role", "must be CUSTOMER or DEVELOPER")
		} else {
			role = r
		}
	}
	profile := trimProfile(in.Profile)
	validateProfile(verr, profile.FirstName, profile.LastName, profile.Company, profile.Phone)
	if err := verr.errOrNil(); err != nil {
		return AuthResult{}, err
	}
	if err := s.checkPassword("password", in.Password); err != nil {
		return AuthResult{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, email, hash, role, profile)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, ErrDuplicateEmail
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	res, err := s.issuePair(ctx, u, rm)
	if err != nil {
		return AuthResult{}, err
	}
	s.record(ctx, &u.ID, model.AuditRegister, true, rm, map[string]any{"role": string(role)})
	return res, nil
}

// Login checks credentials and issues a token pair. Every failure is a
// *LoginFailure that prints as "invalid credentials".
func (s *AuthService) Login(ctx context.Context, email, password string, rm RequestMeta) (AuthResult, error) {
	email = model.NormalizeEmail(email)
	now := s.now().UTC()

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, fmt.Errorf("lookup user: %w", err)
		}
		// Pay for a bcrypt compare so unknown emails are not faster.
		utils.VerifyPassword(s.dummy(), password)
		s.record(ctx, nil, model.AuditLoginFailure, false, rm, map[string]any{"email": email, "reason": "unknown_email"})
		return AuthResult{}, &LoginFailure{At: now, Reason: "unknown_email"}
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.record(ctx, &u.ID, model.AuditLoginFailure, false, rm, map[string]any{"reason": "bad_password"})
		return AuthResult{}, &LoginFailure{UserID: u.ID, At: now, Reason: "bad_password"}
	}
	if !u.IsActive {
		s.record(ctx, &u.ID, model.AuditLoginFailure, false, rm, map[string]any{"reason": "inactive"})
		return AuthResult{}, &LoginFailure{UserID: u.ID, At: now, Reason: "inactive"}
	}

	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		return AuthResult{}, fmt.Errorf("touch login: %w", err)
	}
	u.LastLoginAt = &now

	res, err := s.issuePair(ctx, u, rm)
	if err != nil {
		return AuthResult{}, err
	}
	s.record(ctx, &u.ID, model.AuditLoginSuccess, true, rm, nil)
	return res, nil
}

// Refresh exchanges a live refresh token for a new access token. With
// rotation enabled the presented token is revoked and a new one returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, rm RequestMeta) (RefreshResult, error) {
	raw := strings.TrimSpace(refreshToken)
	claims, err := s.issuer.VerifyRefresh(raw)
	if err != nil {
		s.record(ctx, nil, model.AuditRefreshFailure, false, rm, map[string]any{"reason": tokenReason(err)})
		return RefreshResult{}, ErrInvalidToken
	}
	hash := utils.HashToken(raw)
	rec, err := s.tokens.FindActive(ctx, hash, model.TokenRefresh)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			return RefreshResult{}, fmt.Errorf("find refresh token: %w", err)
		}
		s.record(ctx, &claims.UserID, model.AuditRefreshFailure, false, rm, map[string]any{"reason": "revoked_or_unknown"})
		return RefreshResult{}, ErrInvalidToken
	}
	if rec.UserID != claims.UserID {
		s.record(ctx, &claims.UserID, model.AuditRefreshFailure, false, rm, map[string]any{"reason": "owner_mismatch"})
		return RefreshResult{}, ErrInvalidToken
	}
	u, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return RefreshResult{}, ErrInvalidToken
		}
		return RefreshResult{}, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		s.record(ctx, &u.ID, model.AuditRefreshFailure, false, rm, map[string]any{"reason": "inactive"})
		return RefreshResult{}, ErrInvalidToken
	}

	// Rotation consumes the presented token before anything is issued; a
	// concurrent refresh with the same token loses here.
	if s.opts.RotateRefresh {
		if err := s.tokens.RevokeActive(ctx, hash, model.TokenRefresh); err != nil {
			if errors.Is(err, repository.ErrTokenNotFound) {
				s.record(ctx, &u.ID, model.AuditRefreshFailure, false, rm, map[string]any{"reason": "already_rotated"})
				return RefreshResult{}, ErrInvalidToken
			}
			return RefreshResult{}, fmt.Errorf("revoke rotated token: %w", err)
		}
		s.record(ctx, &u.ID, model.AuditTokenRevoked, true, rm, map[string]any{"reason": "rotated"})
	}

	access, err := s.issuer.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return RefreshResult{}, err
	}
	res := RefreshResult{User: u, Access: access}
	if s.opts.RotateRefresh {
		next, err := s.issueRefresh(ctx, u.ID, rm)
		if err != nil {
			return RefreshResult{}, err
		}
		res.Refresh = &next
	}
	s.record(ctx, &u.ID, model.AuditRefreshSuccess, true, rm, map[string]any{"rotated": s.opts.RotateRefresh})
	return res, nil
}

// Logout revokes the presented refresh token, or every refresh token of
// its owner when allSessions is set. The token must still be live.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, allSessions bool, rm RequestMeta) error {
	raw := strings.TrimSpace(refreshToken)
	claims, err := s.issuer.VerifyRefresh(raw)
	if err != nil {
		return ErrInvalidToken
	}
	n, err := s.revokeSessions(ctx, claims.UserID, utils.HashToken(raw), allSessions)
	if err != nil {
		return err
	}
	if !allSessions {
		s.record(ctx, &claims.UserID, model.AuditTokenRevoked, true, rm, map[string]any{"reason": "logout"})
	}
	s.record(ctx, &claims.UserID, model.AuditLogout, true, rm, map[string]any{"all_sessions": allSessions, "revoked": n})
	return nil
}

// LogoutUser is the bearer-authenticated logout. Without a refresh token
// all sessions of the caller are revoked. When the denylist is configured
// the presented access token stops working immediately; otherwise it stays
// valid until it expires.
func (s *AuthService) LogoutUser(ctx context.Context, in LogoutInput, rm RequestMeta) error {
	all := in.AllSessions || strings.TrimSpace(in.RefreshToken) == ""
	var hash string
	if !all {
		raw := strings.TrimSpace(in.RefreshToken)
		claims, err := s.issuer.VerifyRefresh(raw)
		if err != nil || claims.UserID != in.UserID {
			return ErrInvalidToken
		}
		hash = utils.HashToken(raw)
	}
	n, err := s.revokeSessions(ctx, in.UserID, hash, all)
	if err != nil {
		return err
	}
	if s.denylist != nil && in.AccessTokenID != "" {
		if err := s.denylist.Add(ctx, in.AccessTokenID, in.AccessExpiresAt); err != nil {
			s.log.ErrorContext(ctx, "denylist access token failed", "user_id", in.UserID, "err", err)
		}
	}
	if !all {
		s.record(ctx, &in.UserID, model.AuditTokenRevoked, true, rm, map[string]any{"reason": "logout"})
	}
	s.record(ctx, &in.UserID, model.AuditLogout, true, rm, map[string]any{"all_sessions": all, "revoked": n})
	return nil
}

// revokeSessions revokes one refresh token by hash, or every refresh token
// of userID when all is set. A single revoke requires the token to be live
// and owned by userID.
func (s *AuthService) revokeSessions(ctx context.Context, userID uint64, hash string, all bool) (int64, error) {
	if hash != "" {
		rec, err := s.tokens.FindActive(ctx, hash, model.TokenRefresh)
		if err != nil {
			if errors.Is(err, repository.ErrTokenNotFound) {
				return 0, ErrInvalidToken
			}
			return 0, fmt.Errorf("find refresh token: %w", err)
		}
		if rec.UserID != userID {
			return 0, ErrInvalidToken
		}
	}
	if all {
		n, err := s.tokens.RevokeAll(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("revoke all: %w", err)
		}
		return n, nil
	}
	if err := s.tokens.RevokeActive(ctx, hash, model.TokenRefresh); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("revoke token: %w", err)
	}
	return 1, nil
}

// RequestPasswordReset issues a reset token for an active account and hands
// it to the notifier. It reports success for unknown emails so callers
// cannot tell which accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, rm RequestMeta) error {
	email = model.NormalizeEmail(email)
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.record(ctx, nil, model.AuditPasswordResetReq, false, rm, map[string]any{"email": email, "reason": "unknown_email"})
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		s.record(ctx, &u.ID, model.AuditPasswordResetReq, false, rm, map[string]any{"reason": "inactive"})
		return nil
	}

	now := s.now().UTC()
	tok, err := utils.NewResetToken(now, s.opts.ResetTTL)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if _, err := s.tokens.Record(ctx, u.ID, model.TokenReset, utils.HashToken(tok.Raw), tok.Exp, rm.device()); err != nil {
		return fmt.Errorf("record reset token: %w", err)
	}

	ev := queue.PasswordResetRequested{
		UserID:      u.ID,
		Email:       u.Email,
		Token:       tok.Raw,
		ResetURL:    s.opts.ResetLinkBase + tok.Raw,
		ExpiresAt:   tok.Exp,
		RequestedAt: now,
		RequestID:   rm.RequestID,
	}
	// A broken mail pipeline must not change the response, or it would
	// reveal that the account exists.
	if s.notifier != nil {
		if err := s.notifier.PublishPasswordReset(ctx, ev); err != nil {
			s.log.ErrorContext(ctx, "publish password reset failed", "user_id", u.ID, "err", err)
		}
	}
	s.record(ctx, &u.ID, model.AuditPasswordResetReq, true, rm, nil)
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets a new password.
// All refresh tokens of the user are revoked afterwards. Of concurrent
// confirmations with the same token exactly one succeeds.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string, rm RequestMeta) error {
	// Checked first so a weak password does not burn the token.
	if err := s.checkPassword("new_password", newPassword); err != nil {
		return err
	}
	raw := strings.TrimSpace(token)
	if raw == "" {
		return ErrInvalidToken
	}
	hash := utils.HashToken(raw)
	rec, err := s.tokens.FindActive(ctx, hash, model.TokenReset)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			s.record(ctx, nil, model.AuditPasswordResetFinish, false, rm, map[string]any{"reason": "invalid_token"})
			return ErrInvalidToken
		}
		return fmt.Errorf("find reset token: %w", err)
	}
	newHash, err := utils.HashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.tokens.MarkUsed(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrAlreadyUsed) {
			s.record(ctx, &rec.UserID, model.AuditPasswordResetFinish, false, rm, map[string]any{"reason": "already_used"})
			return ErrInvalidToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, rec.UserID, newHash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("set password: %w", err)
	}
	n, err := s.tokens.RevokeAll(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.record(ctx, &rec.UserID, model.AuditPasswordResetFinish, true, rm, map[string]any{"revoked": n})
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, current, next string, rm RequestMeta) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		s.record(ctx, &u.ID, model.AuditPasswordChange, false, rm, map[string]any{"reason": "bad_password"})
		return ErrInvalidCredentials
	}
	if current == next {
		return invalidField("new_password", "must differ from the current password")
	}
	if err := s.checkPassword("new_password", next); err != nil {
		return err
	}
	hash, err := utils.HashPassword(next, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	s.record(ctx, &u.ID, model.AuditPasswordChange, true, rm, nil)
	return nil
}

// Profile returns the account of userID.
func (s *AuthService) Profile(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies a partial profile edit.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, upd model.ProfileUpdate, rm RequestMeta) (model.User, error) {
	if upd.Empty() {
		return model.User{}, invalidField("profile", "no fields to update")
	}
	upd = trimUpdate(upd)
	verr := &ValidationError{}
	validateProfile(verr, deref(upd.FirstName), deref(upd.LastName), deref(upd.Company), deref(upd.Phone))
	if err := verr.errOrNil(); err != nil {
		return model.User{}, err
	}
	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}
	s.record(ctx, &u.ID, model.AuditProfileUpdate, true, rm, map[string]any{"fields": updatedFields(upd)})
	return u, nil
}

// DeactivateUser soft-disables an account and revokes its refresh tokens.
func (s *AuthService) DeactivateUser(ctx context.Context, actorID, userID uint64, rm RequestMeta) error {
	if actorID == userID {
		return invalidField("id", "cannot deactivate your own account")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.record(ctx, &userID, model.AuditUserDeactivated, true, rm, map[string]any{"actor_id": actorID, "revoked": n})
	return nil
}

// AuditTrail returns the newest audit entries of a user.
func (s *AuthService) AuditTrail(ctx context.Context, userID uint64, limit int) ([]model.AuditEntry, error) {
	entries, err := s.audit.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Earnings returns the payout summary of a developer.
func (s *AuthService) Earnings(ctx context.Context, developerID uint64) (model.Earnings, error) {
	if s.earnings == nil {
		return model.Earnings{}, errors.New("earnings source not configured")
	}
	e, err := s.earnings.Summary(ctx, developerID)
	if err != nil {
		return model.Earnings{}, fmt.Errorf("earnings summary: %w", err)
	}
	return e, nil
}

// Authorize reports ErrForbidden unless role is one of required. An empty
// required set admits any authenticated role.
func Authorize(role model.Role, required ...model.Role) error {
	if len(required) == 0 {
		return nil
	}
	for _, r := range required {
		if role == r {
			return nil
		}
	}
	return ErrForbidden
}

func (s *AuthService) issuePair(ctx context.Context, u model.User, rm RequestMeta) (AuthResult, error) {
	access, err := s.issuer.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.issueRefresh(ctx, u.ID, rm)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: u, Access: access, Refresh: refresh}, nil
}

func (s *AuthService) issueRefresh(ctx context.Context, userID uint64, rm RequestMeta) (utils.RefreshToken, error) {
	refresh, err := s.issuer.IssueRefreshToken(userID)
	if err != nil {
		return utils.RefreshToken{}, err
	}
	if _, err := s.tokens.Record(ctx, userID, model.TokenRefresh, utils.HashToken(refresh.Raw), refresh.Exp, rm.device()); err != nil {
		return utils.RefreshToken{}, fmt.Errorf("record refresh token: %w", err)
	}
	return refresh, nil
}

func (s *AuthService) checkPassword(field, pw string) error {
	if v := s.opts.Password.Check(pw); len(v) > 0 {
		return &PasswordPolicyError{Field: field, Violations: v}
	}
	return nil
}

// dummy returns a bcrypt hash used to equalise login timing.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := utils.HashPassword("capecontrol-timing-equaliser", s.opts.BcryptCost)
		if err != nil {
			s.log.Error("build dummy hash failed", "err", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// record appends an audit entry. Failures are logged and never surface to
// the caller.
func (s *AuthService) record(ctx context.Context, userID *uint64, ev model.AuditEvent, ok bool, rm RequestMeta, kv map[string]any) {
	meta := make(map[string]any, len(kv)+3)
	for k, v := range kv {
		meta[k] = v
	}
	if rm.IP != "" {
		meta["ip"] = rm.IP
	}
	if rm.UserAgent != "" {
		meta["user_agent"] = rm.UserAgent
	}
	if rm.RequestID != "" {
		meta["request_id"] = rm.RequestID
	}
	entry := model.AuditEntry{UserID: userID, Event: ev, Success: ok, CreatedAt: s.now().UTC(), Metadata: meta}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.log.ErrorContext(ctx, "audit append failed", "event", string(ev), "err", err)
	}
}

func tokenReason(err error) string {
	if errors.Is(err, utils.ErrExpired) {
		return "expired"
	}
	return "invalid_signature"
}

func validateEmail(email string) error {
	if email == "" {
		return invalidField("email", "is required")
	}
	if len(email) > maxEmailLen {
		return invalidField("email", fmt.Sprintf("must be at most %d characters", maxEmailLen))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidField("email", "is not a valid address")
	}
	return nil
}

func validateProfile(verr *ValidationError, first, last, company, phone string) {
	for _, f := range []struct{ name, value string }{
		{"first_name", first}, {"last_name", last}, {"company", company},
	} {
		if len([]rune(f.value)) > maxProfileLen {
			verr.add(f.name, fmt.Sprintf("must be at most %d characters", maxProfileLen))
		}
	}
	if len(phone) > maxPhoneLen {
		verr.add("phone", fmt.Sprintf("must be at most %d characters", maxPhoneLen))
	} else if strings.IndexFunc(phone, func(r rune) bool {
		return !strings.ContainsRune("0123456789+-() .", r)
	}) >= 0 {
		verr.add("phone", "may contain only digits, spaces and + - ( ) .")
	}
}

func trimProfile(p model.Profile) model.Profile {
	return model.Profile{
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Company:   strings.TrimSpace(p.Company),
		Phone:     strings.TrimSpace(p.Phone),
	}
}

func trimUpdate(u model.ProfileUpdate) model.ProfileUpdate {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	return model.ProfileUpdate{
		FirstName: trim(u.FirstName),
		LastName:  trim(u.LastName),
		Company:   trim(u.Company),
		Phone:     trim(u.Phone),
	}
}

func updatedFields(u model.ProfileUpdate) []string {
	var out []string
	if u.FirstName != nil {
		out = append(out, "first_name")
	}
	if u.LastName != nil {
		out = append(out, "last_name")
	}
	if u.Company != nil {
		out = append(out, "company")
	}
	if u.Phone != nil {
		out = append(out, "phone")
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
