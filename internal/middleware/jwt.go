package middleware // package middleware provides the access control gate and supporting HTTP middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/utils"
)

// TokenVerifier checks an access token; *utils.Issuer implements it.
type TokenVerifier interface {
	Verify(raw string) (utils.Claims, error)
}

// AccessDenylist reports revoked access-token ids. It is optional.
type AccessDenylist interface {
	Contains(ctx context.Context, jti string) (bool, error)
}

// JWTAuth validates the Bearer access token and stores the caller's
// Identity in the context. Every failure is a 401 with the same body.
// The token ledger is not consulted: a revoked session's access token
// stays valid until it expires unless a denylist is supplied.
func JWTAuth(v TokenVerifier, deny AccessDenylist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c)
			}
			claims, err := v.Verify(raw)
			if err != nil {
				return unauthorized(c)
			}
			if deny != nil {
				revoked, err := deny.Contains(c.Request().Context(), claims.ID)
				if err != nil {
					// Fail open like the rate limiter: Redis is an optional dependency.
					slog.WarnContext(c.Request().Context(), "denylist lookup failed", "err", err)
				} else if revoked {
					return unauthorized(c)
				}
			}
			setIdentity(c, Identity{
				UserID:    claims.UserID,
				Role:      claims.Role,
				TokenID:   claims.ID,
				ExpiresAt: claims.ExpiresAt,
				RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			})
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
