// Package middleware provides Echo middleware for the HTTP adapter:
// JWT identity extraction and the service-capability carve-out used by
// Cancel (SPEC_FULL.md §4.8). Grounded on the teacher's
// internal/middleware/jwt.go parse-and-c.Set idiom, narrowed to what
// this service's handlers actually consume.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const ctxKeyUserID = "user_id"
const ctxKeyRole = "role"
const ctxKeyCapability = "capability"

// capabilityClaim is the JWT claim that lets a trusted peer service call
// Cancel on a booking it does not own, carrying "cancel:any" the way
// internal/core.CancelInput.CallerCapability expects (§4.8). It is only
// read after JWTAuth has verified the bearer token's signature, so the
// capability is tamper-evident, not a bare header any caller could forge.
const capabilityClaim = "capability"

// JWTAuth validates a Bearer access token and stores its subject, role,
// and (optional) capability claim in the Echo context for handlers to
// read via UserID/Role/Capability.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			if sub, _ := claims["sub"].(string); sub != "" {
				c.Set(ctxKeyUserID, sub)
			}
			if role, _ := claims["role"].(string); role != "" {
				c.Set(ctxKeyRole, role)
			}
			if cap, _ := claims[capabilityClaim].(string); cap != "" {
				c.Set(ctxKeyCapability, cap)
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated caller's subject claim, or "" if none.
func UserID(c echo.Context) string {
	v, _ := c.Get(ctxKeyUserID).(string)
	return v
}

// Role returns the authenticated caller's role claim, or "" if none.
func Role(c echo.Context) string {
	v, _ := c.Get(ctxKeyRole).(string)
	return v
}

// Capability returns the authenticated caller's capability claim (e.g.
// "cancel:any" for a trusted peer service), or "" if none.
func Capability(c echo.Context) string {
	v, _ := c.Get(ctxKeyCapability).(string)
	return v
}
