package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds various security headers to the response
func SecurityHeaders(tls bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS only makes sense when we terminate TLS ourselves
		if tls {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// ContentSecurityPolicy adds CSP headers. The API only serves JSON and the
// console websocket.
func ContentSecurityPolicy(isDev bool) gin.HandlerFunc {
	connectSrc := []string{"'self'"}
	if isDev {
		connectSrc = append(connectSrc, "ws:", "wss:")
	}

	policy := strings.Join([]string{
		"default-src 'none'",
		"connect-src " + strings.Join(connectSrc, " "),
		"img-src 'self' data:",
		"object-src 'none'",
		"frame-ancestors 'none'",
	}, "; ") + ";"

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", policy)
		c.Next()
	}
}
