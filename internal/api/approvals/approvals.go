// Package approvals exposes the approval-workflow endpoints: opening a
// workflow against a target, deciding it, cancelling it, and listing.
package approvals

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/api/respond"
	"github.com/marketplace-registry/marketplace-registry/internal/approval"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/middleware"
)

// Handler serves the approval workflow API.
type Handler struct {
	svc *approval.Service
}

// NewHandler creates the approvals handler.
func NewHandler(svc *approval.Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	WorkflowType string         `json:"workflow_type" binding:"required"`
	TargetKind   string         `json:"target_type" binding:"required"`
	TargetID     string         `json:"target_id" binding:"required"`
	ApproverID   *uuid.UUID     `json:"approver_id"`
	RequestData  models.Payload `json:"request_data"`
}

// Create opens a new workflow. The authenticated caller is the requester.
// Implements: POST /api/v1/approvals
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "workflow_type, target_type and target_id are required")
		return
	}

	user := middleware.CurrentUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "authentication required",
		})
		return
	}

	workflow, err := h.svc.Create(c.Request.Context(), approval.CreateRequest{
		WorkflowType: req.WorkflowType,
		TargetKind:   models.TargetKind(req.TargetKind),
		TargetID:     req.TargetID,
		RequesterID:  user.ID,
		ApproverID:   req.ApproverID,
		RequestData:  req.RequestData,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"workflow": workflow,
	})
}

// List returns workflows filtered by status, target type, and requester.
// Implements: GET /api/v1/approvals
func (h *Handler) List(c *gin.Context) {
	filters := repositories.ListFilters{
		Status:     c.Query("status"),
		TargetKind: c.Query("target_type"),
		Requester:  c.Query("requester"),
		Limit:      intQuery(c, "limit", 20),
		Offset:     intQuery(c, "offset", 0),
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	workflows, total, err := h.svc.List(c.Request.Context(), filters)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"workflows": workflows,
		"total":     total,
		"limit":     filters.Limit,
		"offset":    filters.Offset,
	})
}

// Get returns a single workflow by ID.
// Implements: GET /api/v1/approvals/:id
func (h *Handler) Get(c *gin.Context) {
	workflow, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"workflow": workflow,
	})
}

type decisionRequest struct {
	Comment      *string        `json:"comments"`
	DecisionData models.Payload `json:"decision_data"`
}

type decideFunc func(ctx context.Context, workflowID string, actor *models.User, comment *string, decisionData models.Payload) (*models.ApprovalWorkflow, error)

// Approve records an approve decision and applies the target side effect.
// Implements: POST /api/v1/approvals/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.decide(c, h.svc.Approve)
}

// Reject records a reject decision and applies the target side effect.
// Implements: POST /api/v1/approvals/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c *gin.Context, fn decideFunc) {
	var req decisionRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "malformed decision body")
			return
		}
	}

	workflow, err := fn(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), req.Comment, req.DecisionData)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"workflow": workflow,
	})
}

// Cancel withdraws a pending workflow; only the requester may do this.
// Implements: POST /api/v1/approvals/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	workflow, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"workflow": workflow,
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
