package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig tunes the headers for how the console is deployed.
type SecurityHeadersConfig struct {
	// HSTS is only sent when the console is reached over TLS; a local
	// plain-HTTP console must not pin the browser to https.
	HSTS bool
}

// SecurityHeaders sets the headers every console response carries.
// Responses hold patient data, so nothing is cached, and the JSON API never
// loads resources or gets framed.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			// The SSE stream sets its own no-cache; everything else is no-store.
			if !strings.HasSuffix(c.Request().URL.Path, "/stream") {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
