package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/middleware"
	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/service"
)

// requestTimeout bounds the store calls of one request.
const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{Svc: svc}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"` // CUSTOMER | DEVELOPER
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Phone     string `json:"phone"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
	AllSessions  bool   `json:"all_sessions"`
}
type resetReq struct {
	Email string `json:"email"`
}
type resetConfirmReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
type profileReq struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Company   *string `json:"company"`
	Phone     *string `json:"phone"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Company     string     `json:"company"`
	Phone       string     `json:"phone"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}
type refreshResp struct {
	Access  tokenPart  `json:"access"`
	Refresh *tokenPart `json:"refresh,omitempty"`
}

func toUserPart(u model.User) userPart {
	return userPart{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		FirstName:   u.Profile.FirstName,
		LastName:    u.Profile.LastName,
		Company:     u.Profile.Company,
		Phone:       u.Profile.Phone,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func toAuthResp(r service.AuthResult) authResp {
	return authResp{
		User:    toUserPart(r.User),
		Access:  tokenPart{Token: r.Access.Token, Expires: r.Access.Exp},
		Refresh: tokenPart{Token: r.Refresh.Raw, Expires: r.Refresh.Exp}, // raw back to client
	}
}

func requestMeta(c echo.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Profile: model.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Company:   req.Company,
			Phone:     req.Phone,
		},
	}, requestMeta(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(res))
}

// Login: verify credentials and return a new pair. Unknown email, wrong
// password and inactive account produce the same response.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password, requestMeta(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// Refresh: exchange a refresh token for a new access token. The refresh
// token is only returned when rotation is enabled.
func (h *AuthHandler) Refresh(c echo.Context) error {
	// A missing or unreadable token is just another invalid token.
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return writeError(c, service.ErrInvalidToken)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Svc.Refresh(ctx, req.RefreshToken, requestMeta(c))
	if err != nil {
		return writeError(c, err)
	}
	out := refreshResp{Access: tokenPart{Token: res.Access.Token, Expires: res.Access.Exp}}
	if res.Refresh != nil {
		out.Refresh = &tokenPart{Token: res.Refresh.Raw, Expires: res.Refresh.Exp}
	}
	return c.JSON(http.StatusOK, out)
}

// Logout (protected): revokes the refresh token in the body, or every
// session of the caller when none is given or all_sessions is set.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	// An empty or missing body means "log out everywhere".
	var req logoutReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid body")
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	err := h.Svc.LogoutUser(ctx, service.LogoutInput{
		UserID:          id.UserID,
		AccessTokenID:   id.TokenID,
		AccessExpiresAt: id.ExpiresAt,
		RefreshToken:    req.RefreshToken,
		AllSessions:     req.AllSessions,
	}, requestMeta(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// RequestPasswordReset always answers 200 for a well-formed request.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return badRequest(c, "email required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.RequestPasswordReset(ctx, req.Email, requestMeta(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the account exists, a reset link has been sent"})
}

// ConfirmPasswordReset sets a new password using a reset token. Token
// problems are a 400 with one generic message.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return badRequest(c, "token and new_password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	err := h.Svc.ConfirmPasswordReset(ctx, req.Token, req.NewPassword, requestMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return badRequest(c, service.ErrInvalidToken.Error())
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// ChangePassword (protected).
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest(c, "current_password and new_password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.ChangePassword(ctx, id.UserID, req.CurrentPassword, req.NewPassword, requestMeta(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.Profile(ctx, id.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

// UpdateMe applies a partial profile update; omitted fields are untouched.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Svc.UpdateProfile(ctx, id.UserID, model.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company:   req.Company,
		Phone:     req.Phone,
	}, requestMeta(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}
