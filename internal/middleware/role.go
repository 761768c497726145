package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/service"
)

// RequireRole aborts with 403 unless the caller's role is one of roles.
// It must run after JWTAuth; a request without an identity gets 401.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return unauthorized(c)
			}
			if err := service.Authorize(id.Role, roles...); err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
