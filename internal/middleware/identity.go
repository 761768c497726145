package middleware

// identity.go defines the typed request identity set by JWTAuth and the
// helpers other middleware use to key per-user state.

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

const identityKey = "auth.identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    uint64
	Role      model.Role
	TokenID   string    // jti of the access token
	ExpiresAt time.Time // access token expiry
	RequestID string
}

func setIdentity(c echo.Context, id Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the identity stored by JWTAuth. ok is false on
// routes that are not behind JWTAuth.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// currentUserID returns the caller's user id as a string, or "anon" when
// the request is unauthenticated.
func currentUserID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.UserID != 0 {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
