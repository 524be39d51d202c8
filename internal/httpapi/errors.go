package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/transit-systems/ticketing-core/internal/core"
)

// writeError maps a core.Error's Kind to the HTTP status §7 specifies;
// anything else (a query-core plain error, a context deadline) falls
// back to 500 the way the teacher's handler.AuthHandler methods do for
// unclassified repository errors.
func writeError(c echo.Context, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		body := echo.Map{"error": ce.Code, "message": ce.Message}
		if ce.SubReason != "" {
			body["subReason"] = ce.SubReason
		}
		if ce.CurrentStatus != "" {
			body["currentStatus"] = ce.CurrentStatus
		}
		return c.JSON(statusFor(ce.Kind), body)
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": err.Error()})
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindBadRequest:
		return http.StatusBadRequest
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict, core.KindInvalidState:
		return http.StatusConflict
	case core.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
