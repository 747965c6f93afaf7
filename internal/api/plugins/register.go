// Package plugins implements the module submission endpoints: archive
// upload, VCS and URL acquisition, server-side folder registration, and the
// dry-run manifest check.
package plugins

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/api/respond"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/ingest"
	"github.com/marketplace-registry/marketplace-registry/internal/middleware"
)

// Handler exposes the registration endpoints over the ingestion service.
type Handler struct {
	svc *ingest.Service
}

// NewHandler creates the plugins handler.
func NewHandler(svc *ingest.Service) *Handler {
	return &Handler{svc: svc}
}

func submitterID(c *gin.Context) *uuid.UUID {
	if user := middleware.CurrentUser(c); user != nil {
		id := user.ID
		return &id
	}
	return nil
}

func registered(c *gin.Context, module *models.Module) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"module":  module,
	})
}

// Upload accepts a multipart module archive in the module_file part, with an
// optional detached signature part, and registers it.
// Implements: POST /api/v1/plugins/register/upload
func (h *Handler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("module_file")
	if err != nil {
		respond.BadRequest(c, "missing or invalid file upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.BadRequest(c, "failed to read uploaded file")
		return
	}

	var signature []byte
	if sigFile, _, err := c.Request.FormFile("signature"); err == nil {
		signature, err = io.ReadAll(sigFile)
		sigFile.Close()
		if err != nil {
			respond.BadRequest(c, "failed to read signature")
			return
		}
	}

	module, err := h.svc.RegisterFromArchive(c.Request.Context(), header.Filename, data, signature, submitterID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	registered(c, module)
}

type vcsRequest struct {
	RepoURL string `json:"repo_url" binding:"required"`
	Ref     string `json:"ref"`
}

// VCS clones a repository at an optional ref and registers its content.
// Implements: POST /api/v1/plugins/register/vcs
func (h *Handler) VCS(c *gin.Context) {
	var req vcsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "repo_url is required")
		return
	}

	module, err := h.svc.RegisterFromVCS(c.Request.Context(), req.RepoURL, req.Ref, submitterID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	registered(c, module)
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

// URL downloads an archive from a remote location and registers it.
// Implements: POST /api/v1/plugins/register/url
func (h *Handler) URL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "url is required")
		return
	}

	module, err := h.svc.RegisterFromURL(c.Request.Context(), req.URL, submitterID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	registered(c, module)
}

type folderRequest struct {
	Path string `json:"folder_path" binding:"required"`
}

// Folder registers a directory already present on the server, typically a
// shared drop location mounted into the container.
// Implements: POST /api/v1/plugins/register/folder
func (h *Handler) Folder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "folder_path is required")
		return
	}

	module, err := h.svc.RegisterFromDirectory(c.Request.Context(), req.Path, submitterID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	registered(c, module)
}

// Validate runs manifest validation on an uploaded archive without
// registering anything.
// Implements: POST /api/v1/plugins/register/validate
func (h *Handler) Validate(c *gin.Context) {
	file, header, err := c.Request.FormFile("module_file")
	if err != nil {
		respond.BadRequest(c, "missing or invalid file upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.BadRequest(c, "failed to read uploaded file")
		return
	}

	result, err := h.svc.ValidateUpload(header.Filename, data)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
		"manifest": result.Manifest,
	})
}
