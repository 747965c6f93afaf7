package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-registry/marketplace-registry/internal/audit"
	"github.com/marketplace-registry/marketplace-registry/internal/middleware"
	"github.com/marketplace-registry/marketplace-registry/internal/safego"
)

// auditActions maps mutating route patterns to audit action names. Routes not
// listed here are not audited.
var auditActions = map[string]string{
	"/api/v1/plugins/register/upload": "module.register.upload",
	"/api/v1/plugins/register/vcs":    "module.register.vcs",
	"/api/v1/plugins/register/url":    "module.register.url",
	"/api/v1/plugins/register/folder": "module.register.folder",
	"/api/v1/modules/:id/requeue":     "module.requeue",
	"/api/v1/modules/:id/publish":     "module.publish",
	"/api/v1/approvals":               "workflow.create",
	"/api/v1/approvals/:id/approve":   "workflow.approve",
	"/api/v1/approvals/:id/reject":    "workflow.reject",
	"/api/v1/approvals/:id/cancel":    "workflow.cancel",
}

// AuditMiddleware ships one audit entry per mutating request. Shipping happens
// after the handler so the recorded status reflects the outcome; a failed ship
// never fails the request.
func AuditMiddleware(shipper *audit.MultiShipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}
		action, ok := auditActions[c.FullPath()]
		if !ok {
			return
		}

		entry := &audit.Entry{
			Timestamp:  time.Now().UTC(),
			Action:     action,
			IPAddress:  c.ClientIP(),
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
		}
		if user := middleware.CurrentUser(c); user != nil {
			entry.ActorID = user.ID.String()
		}
		if method, ok := c.Get(middleware.AuthMethodKey); ok {
			entry.AuthMethod, _ = method.(string)
		}
		if requestID, ok := c.Get(middleware.RequestIDKey); ok {
			entry.RequestID, _ = requestID.(string)
		}
		if id := c.Param("id"); id != "" {
			entry.Metadata = map[string]interface{}{"target_id": id}
		}

		// Delivery must outlive the request context, so ship on a detached
		// context off the request goroutine.
		safego.Named("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Warn("audit delivery failed", "action", entry.Action, "error", err)
			}
		})
	}
}
