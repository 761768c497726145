package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/capecontrol/capecontrol-auth/internal/service"
)

// writeError maps service errors onto the JSON error contract. Validation
// problems carry field details; authentication failures stay generic; any
// other error is logged and reported as a bare 500.
func writeError(c echo.Context, err error) error {
	var (
		verr *service.ValidationError
		perr *service.PasswordPolicyError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": verr.Fields})
	case errors.As(err, &perr):
		details := make([]service.FieldError, 0, len(perr.Violations))
		for _, v := range perr.Violations {
			details = append(details, service.FieldError{Field: perr.Field, Message: v})
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": service.ErrWeakPassword.Error(), "details": details})
	case errors.Is(err, service.ErrDuplicateEmail):
		return c.JSON(http.StatusConflict, echo.Map{"error": service.ErrDuplicateEmail.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrInvalidCredentials.Error()})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrInvalidToken.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": service.ErrUserNotFound.Error()})
	}
	slog.ErrorContext(c.Request().Context(), "request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"err", err,
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
