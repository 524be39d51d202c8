package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health mirrors the teacher's handler.Health: a liveness probe with no
// dependency checks.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Ready additionally pings the write and read pools so a load balancer
// can hold back traffic during a slow startup or a database outage.
func (h *Handler) Ready(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.Core.Write.DB().PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "write store unreachable"})
	}
	if err := h.Query.Read.DB().PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "read store unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
