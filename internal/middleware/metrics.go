// Package middleware provides the Gin HTTP middleware for the marketplace
// API: request identifiers, Prometheus metrics, authentication, role checks,
// rate limiting, and security headers.
//
// Ordering matters and is enforced in the router:
//
//	Recovery → RequestID → Metrics → SecurityHeaders → RateLimit → Auth → Handler
//
// Rate limiting runs before auth so brute-force traffic is rejected without
// any database work.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
)

// Metrics records request count and latency for every request. The path label
// uses the matched route template (e.g. /api/v1/modules/:id) rather than the
// raw URL; unmatched requests use "<no-route>" so 404 scans do not inflate
// label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
