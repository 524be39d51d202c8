// Package httpapi is the thin Echo-based HTTP adapter in front of the
// command and query cores (§1's "HTTP API is a collaborator, not part
// of the core"). Route registration follows the teacher's
// internal/router/router.go grouping style, trimmed to this service's
// surface (no register/login/refresh — identity arrives pre-issued on
// the bearer token, per SPEC_FULL.md §6).
package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/transit-systems/ticketing-core/internal/httpapi/middleware"
)

// RegisterRoutes wires the health endpoints and the authenticated
// ticketing surface onto e.
func RegisterRoutes(e *echo.Echo, h *Handler, jwtSecret string) {
	e.GET("/health", Health)
	e.GET("/health/live", Health)
	e.GET("/health/ready", h.Ready)

	g := e.Group("/tickets")
	g.Use(middleware.JWTAuth(jwtSecret))

	g.POST("/commands/book", h.Book)
	g.POST("/commands/reserve", h.Reserve)
	g.POST("/commands/confirm", h.Confirm)
	g.POST("/commands/cancel", h.Cancel)

	g.GET("/queries/my-tickets", h.MyTickets)
	g.GET("/queries/:bookingId", h.GetTicket)
}
