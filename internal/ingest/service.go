// Package ingest implements module registration from the four supported
// sources: direct archive upload, VCS clone, remote URL, and a local
// directory. All sources converge on a single staged-directory pipeline:
// validate the manifest, hash the content tree, reject duplicates, persist
// the package, record the module, and enqueue it for quality analysis.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
	"github.com/marketplace-registry/marketplace-registry/internal/storage"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
	"github.com/marketplace-registry/marketplace-registry/internal/validation"
	"github.com/marketplace-registry/marketplace-registry/pkg/treehash"
)

// Service runs the registration pipeline.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	modules    *repositories.ModuleRepository
	store      storage.Store
	queue      queue.Queue
	httpClient *http.Client
}

// NewService creates the ingestion service.
func NewService(cfg *config.Config, logger *slog.Logger, modules *repositories.ModuleRepository, store storage.Store, q queue.Queue) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		modules:    modules,
		store:      store,
		queue:      q,
		httpClient: &http.Client{},
	}
}

// RegisterFromArchive registers an uploaded archive. When a trusted signing
// key is configured the detached signature is verified before anything is
// unpacked; signature enforcement depends on the require_signature setting.
func (s *Service) RegisterFromArchive(ctx context.Context, filename string, data []byte, signature []byte, submittedBy *uuid.UUID) (*models.Module, error) {
	kind, err := validation.DetectArchiveKind(filename)
	if err != nil {
		return s.fail("upload", "invalid", &IngestionError{Kind: "corrupt", Err: err})
	}

	if err := s.verifySignature(data, signature); err != nil {
		return s.fail("upload", "invalid", err)
	}

	stage, cleanup, err := s.stageDir()
	if err != nil {
		return s.fail("upload", "error", err)
	}
	defer cleanup()

	if err := extractArchive(data, kind, s.cfg.Ingestion.MaxArchiveBytes(), stage); err != nil {
		return s.fail("upload", "invalid", err)
	}

	return s.registerStaged(ctx, stage, "upload", submittedBy)
}

// RegisterFromVCS clones a repository and registers its working tree. The
// optional ref names a branch or tag; empty means the default branch.
func (s *Service) RegisterFromVCS(ctx context.Context, repoURL, ref string, submittedBy *uuid.UUID) (*models.Module, error) {
	stage, cleanup, err := s.stageDir()
	if err != nil {
		return s.fail("vcs", "error", err)
	}
	defer cleanup()

	if err := s.cloneRepository(ctx, repoURL, ref, stage); err != nil {
		return s.fail("vcs", "error", err)
	}

	return s.registerStaged(ctx, stage, "vcs", submittedBy)
}

// RegisterFromURL downloads an archive from a remote URL and registers it.
func (s *Service) RegisterFromURL(ctx context.Context, url string, submittedBy *uuid.UUID) (*models.Module, error) {
	data, err := s.downloadArchive(ctx, url)
	if err != nil {
		return s.fail("url", "error", err)
	}

	kind, err := validation.DetectArchiveKind(url)
	if err != nil {
		// Default to tar.gz when the URL carries no recognizable extension.
		kind = validation.ArchiveTarGz
	}

	stage, cleanup, err := s.stageDir()
	if err != nil {
		return s.fail("url", "error", err)
	}
	defer cleanup()

	if err := extractArchive(data, kind, s.cfg.Ingestion.MaxArchiveBytes(), stage); err != nil {
		return s.fail("url", "invalid", err)
	}

	return s.registerStaged(ctx, stage, "url", submittedBy)
}

// RegisterFromDirectory registers a package already present on the local
// filesystem, for operator-side imports. The source directory is copied into
// scratch so the pipeline never mutates the original.
func (s *Service) RegisterFromDirectory(ctx context.Context, dir string, submittedBy *uuid.UUID) (*models.Module, error) {
	stage, cleanup, err := s.stageDir()
	if err != nil {
		return s.fail("folder", "error", err)
	}
	defer cleanup()

	if err := copyTree(dir, stage); err != nil {
		return s.fail("folder", "error", fmt.Errorf("failed to stage directory: %w", err))
	}

	return s.registerStaged(ctx, stage, "folder", submittedBy)
}

// ValidateUpload dry-runs manifest validation over an archive without
// registering anything.
func (s *Service) ValidateUpload(filename string, data []byte) (*validation.ManifestResult, error) {
	kind, err := validation.DetectArchiveKind(filename)
	if err != nil {
		return nil, &IngestionError{Kind: "corrupt", Err: err}
	}

	stage, cleanup, err := s.stageDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := extractArchive(data, kind, s.cfg.Ingestion.MaxArchiveBytes(), stage); err != nil {
		return nil, err
	}
	return validation.ValidateManifestDir(stage), nil
}

// registerStaged is the shared tail of every registration source. The staged
// directory is owned by the caller and cleaned up regardless of outcome. A
// manifest whose author+name slug is already registered appends a version to
// that module; an unknown slug creates a new one.
func (s *Service) registerStaged(ctx context.Context, stage, source string, submittedBy *uuid.UUID) (*models.Module, error) {
	result := validation.ValidateManifestDir(stage)
	if !result.Valid() {
		return s.fail(source, "invalid", &ValidationError{Problems: result.Errors})
	}
	manifest := result.Manifest

	contentHash, err := treehash.HashDir(stage)
	if err != nil {
		return s.fail(source, "error", fmt.Errorf("failed to hash content: %w", err))
	}

	if existing, err := s.modules.FindByContentHash(ctx, contentHash); err != nil {
		return s.fail(source, "error", err)
	} else if existing != nil {
		return s.fail(source, "duplicate", &DuplicateError{ExistingID: existing.ID, ExistingSlug: existing.Slug})
	}

	existing, err := s.modules.GetBySlug(ctx, manifest.Slug())
	if err != nil {
		return s.fail(source, "error", err)
	}

	archive, err := packTarGz(stage)
	if err != nil {
		return s.fail(source, "error", fmt.Errorf("failed to pack archive: %w", err))
	}

	if existing != nil {
		return s.appendVersion(ctx, existing, manifest, contentHash, archive, source)
	}
	return s.createModule(ctx, manifest, contentHash, archive, source, submittedBy)
}

// createModule registers a slug seen for the first time.
func (s *Service) createModule(ctx context.Context, manifest *validation.Manifest, contentHash string, archive []byte, source string, submittedBy *uuid.UUID) (*models.Module, error) {
	slug := manifest.Slug()
	storagePath := fmt.Sprintf("modules/%s/%s.tar.gz", slug, manifest.Version)
	info, err := s.store.Put(ctx, storagePath, bytes.NewReader(archive))
	if err != nil {
		return s.fail(source, "error", fmt.Errorf("failed to persist archive: %w", err))
	}

	module := &models.Module{
		Slug:          slug,
		Name:          manifest.Name,
		Category:      models.ModuleCategory(manifest.Category),
		Author:        manifest.Author,
		Version:       manifest.Version,
		Status:        models.StatusPending,
		Tags:          models.JSONB[[]string]{Data: manifest.Tags},
		Compatibility: models.JSONB[models.Compatibility]{Data: manifest.Compatibility},
		Dependencies:  models.JSONB[[]models.Dependency]{Data: manifest.Dependencies},
		ContentHash:   contentHash,
		StoragePath:   storagePath,
		SubmittedBy:   submittedBy,
	}
	if manifest.Description != "" {
		module.Description = &manifest.Description
	}

	version := &models.ModuleVersion{
		Version:     manifest.Version,
		StoragePath: storagePath,
		SizeBytes:   info.Size,
		ContentHash: contentHash,
		IsActive:    true,
	}
	if manifest.Changelog != "" {
		version.Changelog = &manifest.Changelog
	}

	if err := s.modules.CreateWithVersion(ctx, module, version); err != nil {
		// The archive must not outlive a failed registration.
		if delErr := s.store.Delete(ctx, storagePath); delErr != nil {
			s.logger.Warn("failed to remove orphaned archive", "path", storagePath, "error", delErr)
		}
		if errors.Is(err, repositories.ErrDuplicateContent) {
			return s.fail(source, "duplicate", &DuplicateError{ExistingSlug: slug})
		}
		return s.fail(source, "error", err)
	}

	s.enqueueAndLog(ctx, module, source, "module registered")
	return module, nil
}

// appendVersion records a further version of an already-registered module,
// deactivating the previous active version and sending the module back
// through QA.
func (s *Service) appendVersion(ctx context.Context, module *models.Module, manifest *validation.Manifest, contentHash string, archive []byte, source string) (*models.Module, error) {
	versions, err := s.modules.ListVersions(ctx, module.ID.String())
	if err != nil {
		return s.fail(source, "error", err)
	}
	// Checked before Put so a resubmitted version string cannot clobber the
	// stored archive it collides with.
	for _, v := range versions {
		if v.Version == manifest.Version {
			return s.fail(source, "duplicate", repositories.ErrDuplicateVersion)
		}
	}

	storagePath := fmt.Sprintf("modules/%s/%s.tar.gz", module.Slug, manifest.Version)
	info, err := s.store.Put(ctx, storagePath, bytes.NewReader(archive))
	if err != nil {
		return s.fail(source, "error", fmt.Errorf("failed to persist archive: %w", err))
	}

	module.Name = manifest.Name
	module.Category = models.ModuleCategory(manifest.Category)
	module.Version = manifest.Version
	module.Tags = models.JSONB[[]string]{Data: manifest.Tags}
	module.Compatibility = models.JSONB[models.Compatibility]{Data: manifest.Compatibility}
	module.Dependencies = models.JSONB[[]models.Dependency]{Data: manifest.Dependencies}
	module.ContentHash = contentHash
	module.StoragePath = storagePath
	module.Description = nil
	if manifest.Description != "" {
		module.Description = &manifest.Description
	}

	version := &models.ModuleVersion{
		Version:     manifest.Version,
		StoragePath: storagePath,
		SizeBytes:   info.Size,
		ContentHash: contentHash,
		IsActive:    true,
	}
	if manifest.Changelog != "" {
		version.Changelog = &manifest.Changelog
	}

	if err := s.modules.AddVersion(ctx, module, version); err != nil {
		if delErr := s.store.Delete(ctx, storagePath); delErr != nil {
			s.logger.Warn("failed to remove orphaned archive", "path", storagePath, "error", delErr)
		}
		if errors.Is(err, repositories.ErrDuplicateVersion) || errors.Is(err, repositories.ErrDuplicateContent) {
			return s.fail(source, "duplicate", err)
		}
		return s.fail(source, "error", err)
	}
	module.Status = models.StatusPending
	module.StatusMessage = nil

	s.enqueueAndLog(ctx, module, source, "module version registered")
	return module, nil
}

func (s *Service) enqueueAndLog(ctx context.Context, module *models.Module, source, msg string) {
	// Enqueue is best-effort: the reclaimer re-enqueues aged pending modules,
	// so a full or unreachable queue never fails the registration.
	if err := s.queue.Enqueue(ctx, module.ID); err != nil {
		s.logger.Warn("failed to enqueue module for QA", "module_id", module.ID, "error", err)
	}

	telemetry.ModuleRegistrationsTotal.WithLabelValues(source, "accepted").Inc()
	s.logger.Info(msg,
		"module_id", module.ID,
		"slug", module.Slug,
		"version", module.Version,
		"source", source)
}

func (s *Service) verifySignature(data, signature []byte) error {
	key := s.cfg.Ingestion.TrustedSigningKey
	if key == "" {
		return nil
	}
	if len(signature) == 0 {
		if s.cfg.Ingestion.RequireSignature {
			return &IngestionError{Kind: "signature", Err: fmt.Errorf("a detached signature is required")}
		}
		return nil
	}
	if err := validation.VerifyDetachedSignature(key, data, signature); err != nil {
		return &IngestionError{Kind: "signature", Err: err}
	}
	return nil
}

// stageDir allocates a scratch directory; the returned cleanup runs on every
// pipeline exit path.
func (s *Service) stageDir() (string, func(), error) {
	if err := os.MkdirAll(s.cfg.Ingestion.ScratchDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.cfg.Ingestion.ScratchDir, "stage-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to clean staging dir", "dir", dir, "error", err)
		}
	}
	return dir, cleanup, nil
}

func (s *Service) fail(source, outcome string, err error) (*models.Module, error) {
	telemetry.ModuleRegistrationsTotal.WithLabelValues(source, outcome).Inc()
	return nil, err
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." {
			// Repository internals and traversal-shaped names are skipped,
			// matching what archive extraction would refuse.
			if err := validation.ValidatePath(filepath.ToSlash(rel)); err != nil {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
