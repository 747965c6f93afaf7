// Package modules implements the catalog endpoints: search, detail with QA
// history, package download, and the operator requeue action.
package modules

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/api/respond"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
	"github.com/marketplace-registry/marketplace-registry/internal/storage"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
	"github.com/marketplace-registry/marketplace-registry/pkg/treehash"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler serves the module catalog.
type Handler struct {
	modules   *repositories.ModuleRepository
	qa        *repositories.QARepository
	approvals *repositories.ApprovalRepository
	store     storage.Store
	queue     queue.Queue
}

// NewHandler creates the catalog handler.
func NewHandler(modules *repositories.ModuleRepository, qa *repositories.QARepository, approvals *repositories.ApprovalRepository, store storage.Store, q queue.Queue) *Handler {
	return &Handler{modules: modules, qa: qa, approvals: approvals, store: store, queue: q}
}

// Search lists modules matching optional filters passed as query parameters.
// Implements: GET /api/v1/modules
func (h *Handler) Search(c *gin.Context) {
	filters := repositories.SearchFilters{
		Query:    c.Query("search"),
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Author:   c.Query("author"),
		Limit:    intQuery(c, "limit", defaultPageSize),
		Offset:   intQuery(c, "offset", 0),
	}
	if filters.Limit < 1 || filters.Limit > maxPageSize {
		filters.Limit = defaultPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	items, total, err := h.modules.Search(c.Request.Context(), filters)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"modules": items,
		"total":   total,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
	})
}

// Get returns a single module with its QA run history, version list, and
// approval workflow history. The :id segment accepts either a UUID or a slug.
// Implements: GET /api/v1/modules/:id
func (h *Handler) Get(c *gin.Context) {
	module, err := h.lookup(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	qaHistory, err := h.qa.ListForModule(c.Request.Context(), module.ID.String())
	if err != nil {
		respond.Error(c, err)
		return
	}
	// The newest run is surfaced separately so catalog clients can render a
	// QA badge without walking the history. Nil when never analyzed.
	latestQA, err := h.qa.GetLatestForModule(c.Request.Context(), module.ID.String())
	if err != nil {
		respond.Error(c, err)
		return
	}
	versions, err := h.modules.ListVersions(c.Request.Context(), module.ID.String())
	if err != nil {
		respond.Error(c, err)
		return
	}
	workflows, err := h.approvals.ListForTarget(c.Request.Context(), models.TargetModule, module.ID.String())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"module":     module,
		"qa_results": qaHistory,
		"latest_qa":  latestQA,
		"versions":   versions,
		"workflows":  workflows,
	})
}

// Download streams the stored package archive and bumps the download counter.
// Implements: GET /api/v1/modules/:id/download
func (h *Handler) Download(c *gin.Context) {
	module, err := h.lookup(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	reader, err := h.store.Get(c.Request.Context(), module.StoragePath)
	if err != nil {
		respond.Error(c, err)
		return
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		respond.Error(c, err)
		return
	}
	// Archives are bounded by the upload limit, so buffering to compute the
	// checksum clients verify against is fine.
	checksum, err := treehash.HashReader(bytes.NewReader(data))
	if err != nil {
		respond.Error(c, err)
		return
	}

	// Counter bump is best effort; a failed UPDATE must not abort the
	// download already in flight.
	if err := h.modules.IncrementDownloads(c.Request.Context(), module.ID.String()); err == nil {
		telemetry.ModuleDownloadsTotal.WithLabelValues(string(module.Category)).Inc()
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", `attachment; filename="`+module.Slug+"-"+module.Version+`.tar.gz"`)
	c.Header("X-Checksum-Sha256", checksum)
	c.Status(http.StatusOK)
	c.Writer.Write(data)
}

// Requeue resets a module to pending and puts it back on the QA queue.
// Admin-only; used to recover modules parked by failed or wedged runs.
// Implements: POST /api/v1/modules/:id/requeue
func (h *Handler) Requeue(c *gin.Context) {
	module, err := h.lookup(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	from := []models.ModuleStatus{
		models.StatusQAInProgress,
		models.StatusQAFailed,
		models.StatusQAError,
		models.StatusQAReviewNeeded,
	}
	if err := h.modules.TransitionStatus(c.Request.Context(), module.ID.String(), from, models.StatusPending, nil); err != nil {
		respond.Error(c, err)
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), module.ID); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"status":  models.StatusPending,
	})
}

// Publish promotes an approved module into the live catalog.
// Admin-only; publishing anything not in approved is a conflict.
// Implements: POST /api/v1/modules/:id/publish
func (h *Handler) Publish(c *gin.Context) {
	module, err := h.lookup(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	from := []models.ModuleStatus{models.StatusApproved}
	if err := h.modules.TransitionStatus(c.Request.Context(), module.ID.String(), from, models.StatusPublished, nil); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  models.StatusPublished,
	})
}

func (h *Handler) lookup(c *gin.Context) (*models.Module, error) {
	ref := c.Param("id")
	if _, err := uuid.Parse(ref); err == nil {
		m, err := h.modules.GetByID(c.Request.Context(), ref)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, repositories.ErrNotFound
		}
		return m, nil
	}
	m, err := h.modules.GetBySlug(c.Request.Context(), ref)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, repositories.ErrNotFound
	}
	return m, nil
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
