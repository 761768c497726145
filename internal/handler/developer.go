package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/middleware"
	"github.com/capecontrol/capecontrol-auth/internal/service"
)

type earningsResp struct {
	DeveloperID  uint64     `json:"developer_id"`
	TotalCents   int64      `json:"total_cents"`
	Entries      int64      `json:"entries"`
	LastEarnedAt *time.Time `json:"last_earned_at"`
}

// Earnings returns the caller's payout summary (DEVELOPER only; the role
// check is done by the router).
func (h *AuthHandler) Earnings(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	e, err := h.Svc.Earnings(ctx, id.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, earningsResp{
		DeveloperID:  e.DeveloperID,
		TotalCents:   e.TotalCents,
		Entries:      e.Entries,
		LastEarnedAt: e.LastEarnedAt,
	})
}
