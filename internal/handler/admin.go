package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/middleware"
	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/service"
)

type auditEntryPart struct {
	ID        uint64           `json:"id"`
	Event     model.AuditEvent `json:"event_type"`
	Success   bool             `json:"success"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

func pathUserID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// DeactivateUser (ADMIN) soft-disables an account and ends its sessions.
func (h *AuthHandler) DeactivateUser(c echo.Context) error {
	actor, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	target, ok := pathUserID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.DeactivateUser(ctx, actor.UserID, target, requestMeta(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
}

// AuditTrail (ADMIN) lists the newest audit entries of a user. The limit
// query parameter defaults to 100.
func (h *AuthHandler) AuditTrail(c echo.Context) error {
	target, ok := pathUserID(c)
	if !ok {
		return badRequest(c, "invalid user id")
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return badRequest(c, "limit must be between 1 and 500")
		}
		limit = n
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.Svc.AuditTrail(ctx, target, limit)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]auditEntryPart, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryPart{ID: e.ID, Event: e.Event, Success: e.Success, CreatedAt: e.CreatedAt, Metadata: e.Metadata})
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": out})
}
