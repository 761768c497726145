package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/handler"
	"github.com/capecontrol/capecontrol-auth/internal/middleware"
	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// RegisterRoutes registers routes that do not belong to any feature group.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// AuthMiddleware is the middleware wired around the auth routes. Limiter
// and Cache may be nil; Denylist is nil unless immediate access-token
// revocation is enabled.
type AuthMiddleware struct {
	Verifier middleware.TokenVerifier
	Denylist middleware.AccessDenylist
	Limiter  echo.MiddlewareFunc
	Cache    echo.MiddlewareFunc
}

// RegisterAuth registers the /auth API. Credential endpoints are
// unauthenticated and rate limited; the rest require a bearer access token
// and, where noted, a role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, m AuthMiddleware) {
	limited := optional(m.Limiter)

	g := e.Group("/auth")
	g.POST("/register", a.Register, limited...)
	g.POST("/login", a.Login, limited...)
	g.POST("/refresh", a.Refresh)
	g.POST("/reset-password", a.RequestPasswordReset, limited...)
	g.POST("/reset-password/confirm", a.ConfirmPasswordReset, limited...)

	auth := e.Group("/auth", middleware.JWTAuth(m.Verifier, m.Denylist))
	auth.POST("/logout", a.Logout)
	auth.GET("/me", a.Me)
	auth.PUT("/me", a.UpdateMe)
	auth.POST("/change-password", a.ChangePassword)

	dev := auth.Group("/developer", middleware.RequireRole(model.RoleDeveloper))
	dev.GET("/earnings", a.Earnings, optional(m.Cache)...)

	admin := auth.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.POST("/users/:id/deactivate", a.DeactivateUser)
	admin.GET("/users/:id/audit", a.AuditTrail)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
