package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders sets the standard hardening headers on every response:
// the API serves a browser-facing dashboard alongside its JSON/WS surface,
// so these apply across the board rather than to a single route group.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}
