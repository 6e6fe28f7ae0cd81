package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders applies the portal's baseline response headers.
// Patient data passes through every endpoint here, so the defaults
// are strict; only camera and microphone stay available to the
// portal's own origin since consultations need them.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(self), camera=(self)")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
