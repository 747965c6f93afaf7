// Package respond centralizes the HTTP error mapping for the marketplace API
// so every handler reports domain errors with the same status codes and
// payload shape.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-registry/marketplace-registry/internal/approval"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/ingest"
)

// Error writes err as a JSON error response with the appropriate status code.
// Unrecognized errors become 500 with a generic message so internals do not
// leak to clients.
func Error(c *gin.Context, err error) {
	var validationErr *ingest.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":  false,
			"error":    "manifest validation failed",
			"problems": validationErr.Problems,
		})
		return
	}

	var duplicateErr *ingest.DuplicateError
	if errors.As(err, &duplicateErr) {
		c.JSON(http.StatusConflict, gin.H{
			"success":       false,
			"error":         "identical content already registered",
			"existing_id":   duplicateErr.ExistingID,
			"existing_slug": duplicateErr.ExistingSlug,
		})
		return
	}

	var ingestionErr *ingest.IngestionError
	if errors.As(err, &ingestionErr) {
		status := http.StatusBadRequest
		switch ingestionErr.Kind {
		case "too_large":
			status = http.StatusRequestEntityTooLarge
		case "network":
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   ingestionErr.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	case errors.Is(err, repositories.ErrStatusConflict),
		errors.Is(err, repositories.ErrWorkflowDecided),
		errors.Is(err, repositories.ErrPendingWorkflowExists),
		errors.Is(err, repositories.ErrDuplicateContent),
		errors.Is(err, repositories.ErrDuplicateVersion),
		errors.Is(err, approval.ErrNoApprover):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, approval.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, approval.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
	}
}

// BadRequest writes a 400 with the given message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}
