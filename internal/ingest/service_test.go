package ingest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
	"github.com/marketplace-registry/marketplace-registry/internal/storage/local"
	"github.com/marketplace-registry/marketplace-registry/internal/validation"
)

const validManifest = `{
	"name": "Inventory Sync",
	"version": "1.2.0",
	"description": "Synchronizes stock counts across locations.",
	"author": "Acme Labs",
	"category": "integration",
	"tags": ["stock"]
}`

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}); err != nil {
			t.Fatalf("failed to write header: %v", err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			t.Fatalf("failed to write content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, db *repositories.ModuleRepository) (*Service, *local.Store, *queue.Memory) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Ingestion.ScratchDir = t.TempDir()
	cfg.Ingestion.MaxArchiveMB = 50
	cfg.Ingestion.DownloadTimeout = 30 * time.Second
	cfg.Ingestion.CloneTimeout = 30 * time.Second

	store, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	q := queue.NewMemory(8)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewService(cfg, logger, db, store, q), store, q
}

func TestRegisterFromArchiveHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	moduleID := uuid.NewString()
	now := time.Now()

	mock.ExpectQuery("FROM modules m\\s+WHERE m.content_hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"})) // empty -> ErrNoRows
	mock.ExpectQuery("FROM modules m WHERE m.slug").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WithArgs(
			"acme-labs-inventory-sync",
			"Inventory Sync",
			sqlmock.AnyArg(),
			"integration",
			"Acme Labs",
			"1.2.0",
			"pending",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			"modules/acme-labs-inventory-sync/1.2.0.tar.gz",
			sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(moduleID, now, now))
	mock.ExpectQuery("INSERT INTO module_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.NewString(), now))
	mock.ExpectCommit()

	svc, store, q := newTestService(t, repositories.NewModuleRepository(db))

	archive := buildTarGz(t, map[string]string{
		"manifest.json": validManifest,
		"src/sync.py":   "def sync():\n    pass\n",
	})

	module, err := svc.RegisterFromArchive(context.Background(), "inventory.tar.gz", archive, nil, nil)
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if module.Slug != "acme-labs-inventory-sync" {
		t.Errorf("unexpected slug %s", module.Slug)
	}
	if module.ID.String() != moduleID {
		t.Errorf("expected id %s, got %s", moduleID, module.ID)
	}

	exists, err := store.Exists(context.Background(), module.StoragePath)
	if err != nil || !exists {
		t.Errorf("expected archive persisted at %s", module.StoragePath)
	}

	queued, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if queued != module.ID {
		t.Errorf("expected %s enqueued, got %s", module.ID, queued)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRegisterFromArchiveInvalidManifest(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	archive := buildTarGz(t, map[string]string{
		"manifest.json": `{"name": "Broken"}`,
	})

	_, err = svc.RegisterFromArchive(context.Background(), "broken.tar.gz", archive, nil, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) == 0 {
		t.Error("expected validation problems listed")
	}
}

func TestRegisterFromArchiveDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	existingID := uuid.NewString()
	rows := sqlmock.NewRows([]string{
		"id", "slug", "name", "description", "category", "author", "version",
		"status", "status_message", "downloads", "tags", "compatibility",
		"dependencies", "content_hash", "storage_path", "submitted_by",
		"created_at", "updated_at",
	}).AddRow(existingID, "acme-labs-inventory-sync", "Inventory Sync", nil,
		"integration", "Acme Labs", "1.2.0", "pending", nil, 0,
		[]byte(`["stock"]`), []byte(`{}`), []byte(`[]`), "somehash",
		"modules/acme-labs-inventory-sync/1.2.0.tar.gz", nil,
		time.Now(), time.Now())

	mock.ExpectQuery("FROM modules m\\s+WHERE m.content_hash").WillReturnRows(rows)

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	archive := buildTarGz(t, map[string]string{"manifest.json": validManifest})

	_, err = svc.RegisterFromArchive(context.Background(), "dup.tar.gz", archive, nil, nil)
	var derr *DuplicateError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if derr.ExistingID.String() != existingID {
		t.Errorf("expected existing id %s, got %s", existingID, derr.ExistingID)
	}
}

func existingModuleRows(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "slug", "name", "description", "category", "author", "version",
		"status", "status_message", "downloads", "tags", "compatibility",
		"dependencies", "content_hash", "storage_path", "submitted_by",
		"created_at", "updated_at",
	}).AddRow(id, "acme-labs-inventory-sync", "Inventory Sync", nil,
		"integration", "Acme Labs", "1.2.0", "published", nil, 12,
		[]byte(`["stock"]`), []byte(`{}`), []byte(`[]`), "oldhash",
		"modules/acme-labs-inventory-sync/1.2.0.tar.gz", nil,
		time.Now(), time.Now())
}

func TestRegisterNewVersionOfExistingModule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	moduleID := uuid.NewString()
	now := time.Now()

	mock.ExpectQuery("FROM modules m\\s+WHERE m.content_hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM modules m WHERE m.slug").
		WithArgs("acme-labs-inventory-sync").
		WillReturnRows(existingModuleRows(moduleID))
	mock.ExpectQuery("FROM module_versions").
		WithArgs(moduleID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "module_id", "version", "changelog", "storage_path",
			"size_bytes", "content_hash", "is_active", "created_at",
		}).AddRow(uuid.NewString(), moduleID, "1.2.0", nil,
			"modules/acme-labs-inventory-sync/1.2.0.tar.gz", int64(1024),
			"oldhash", true, now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE module_versions SET is_active = false").
		WithArgs(moduleID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO module_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.NewString(), now))
	mock.ExpectQuery("UPDATE modules").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	svc, store, q := newTestService(t, repositories.NewModuleRepository(db))

	v2Manifest := `{
		"name": "Inventory Sync",
		"version": "2.0.0",
		"description": "Synchronizes stock counts across locations.",
		"author": "Acme Labs",
		"category": "integration"
	}`
	archive := buildTarGz(t, map[string]string{
		"manifest.json": v2Manifest,
		"src/sync.py":   "def sync_v2():\n    pass\n",
	})

	module, err := svc.RegisterFromArchive(context.Background(), "inventory-v2.tar.gz", archive, nil, nil)
	if err != nil {
		t.Fatalf("version registration failed: %v", err)
	}
	if module.ID.String() != moduleID {
		t.Errorf("expected existing module id %s, got %s", moduleID, module.ID)
	}
	if module.Version != "2.0.0" {
		t.Errorf("expected version 2.0.0, got %s", module.Version)
	}
	if module.Status != "pending" {
		t.Errorf("expected module reset to pending, got %s", module.Status)
	}

	exists, err := store.Exists(context.Background(), "modules/acme-labs-inventory-sync/2.0.0.tar.gz")
	if err != nil || !exists {
		t.Error("expected v2 archive persisted")
	}

	queued, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if queued != module.ID {
		t.Errorf("expected %s enqueued for re-analysis, got %s", module.ID, queued)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRegisterExistingVersionRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	moduleID := uuid.NewString()
	mock.ExpectQuery("FROM modules m\\s+WHERE m.content_hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM modules m WHERE m.slug").
		WillReturnRows(existingModuleRows(moduleID))
	mock.ExpectQuery("FROM module_versions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "module_id", "version", "changelog", "storage_path",
			"size_bytes", "content_hash", "is_active", "created_at",
		}).AddRow(uuid.NewString(), moduleID, "1.2.0", nil,
			"modules/acme-labs-inventory-sync/1.2.0.tar.gz", int64(1024),
			"oldhash", true, time.Now()))

	svc, store, q := newTestService(t, repositories.NewModuleRepository(db))

	// Same version string as the registered one but different content.
	archive := buildTarGz(t, map[string]string{
		"manifest.json": validManifest,
		"src/sync.py":   "def sync_changed():\n    pass\n",
	})

	_, err = svc.RegisterFromArchive(context.Background(), "dup-version.tar.gz", archive, nil, nil)
	if !errors.Is(err, repositories.ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
	var derr *DuplicateError
	if errors.As(err, &derr) {
		t.Fatalf("version collision must not be reported as a content duplicate")
	}

	// The stored archive of the registered version stays untouched.
	exists, err := store.Exists(context.Background(), "modules/acme-labs-inventory-sync/1.2.0.tar.gz")
	if err != nil || exists {
		t.Error("expected no archive written for the rejected resubmission")
	}
	if depth, _ := q.Depth(context.Background()); depth != 0 {
		t.Errorf("expected empty queue, depth=%d", depth)
	}
}

func TestRegisterFromArchiveUnsupportedKind(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	_, err = svc.RegisterFromArchive(context.Background(), "module.rar", []byte("x"), nil, nil)
	var ierr *IngestionError
	if !errors.As(err, &ierr) || ierr.Kind != "corrupt" {
		t.Fatalf("expected corrupt IngestionError, got %v", err)
	}
}

func TestRegisterRequiresSignatureWhenConfigured(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	svc.cfg.Ingestion.TrustedSigningKey = "-----BEGIN PGP PUBLIC KEY BLOCK-----\n..."
	svc.cfg.Ingestion.RequireSignature = true

	archive := buildTarGz(t, map[string]string{"manifest.json": validManifest})
	_, err = svc.RegisterFromArchive(context.Background(), "signed.tar.gz", archive, nil, nil)
	var ierr *IngestionError
	if !errors.As(err, &ierr) || ierr.Kind != "signature" {
		t.Fatalf("expected signature IngestionError, got %v", err)
	}
}

func TestScratchCleanedOnFailure(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	archive := buildTarGz(t, map[string]string{"manifest.json": `{"name": "Broken"}`})

	_, _ = svc.RegisterFromArchive(context.Background(), "broken.tar.gz", archive, nil, nil)

	entries, err := os.ReadDir(svc.cfg.Ingestion.ScratchDir)
	if err != nil {
		t.Fatalf("failed to read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty scratch dir, found %d entries", len(entries))
	}
}

func TestValidateUploadDryRun(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))
	archive := buildTarGz(t, map[string]string{"manifest.json": validManifest})

	result, err := svc.ValidateUpload("check.tar.gz", archive)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !result.Valid() {
		t.Errorf("expected valid manifest, errors: %v", result.Errors)
	}
	if result.Manifest.Slug() != "acme-labs-inventory-sync" {
		t.Errorf("unexpected slug %s", result.Manifest.Slug())
	}
}

func TestRegisterFromDirectory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("FROM modules m\\s+WHERE m.content_hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM modules m WHERE m.slug").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(uuid.NewString(), now, now))
	mock.ExpectQuery("INSERT INTO module_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(uuid.NewString(), now))
	mock.ExpectCommit()

	svc, _, _ := newTestService(t, repositories.NewModuleRepository(db))

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "manifest.json"), []byte(validManifest), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	module, err := svc.RegisterFromDirectory(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if module.Version != "1.2.0" {
		t.Errorf("unexpected version %s", module.Version)
	}

	// The source directory stays untouched.
	if _, err := os.Stat(filepath.Join(src, "manifest.json")); err != nil {
		t.Errorf("source directory was modified: %v", err)
	}
}

func TestExtractPackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	archive := buildTarGz(t, map[string]string{
		"manifest.json": validManifest,
		"src/sync.py":   "def sync():\n    pass\n",
	})
	if err := extractArchive(archive, validation.ArchiveTarGz, 1<<20, dir); err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	packed, err := packTarGz(dir)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	dir2 := t.TempDir()
	if err := extractArchive(packed, validation.ArchiveTarGz, 1<<20, dir2); err != nil {
		t.Fatalf("re-extract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir2, "src", "sync.py"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "def sync():\n    pass\n" {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"../evil.sh": "rm -rf /"})
	err := extractArchive(archive, validation.ArchiveTarGz, 1<<20, t.TempDir())
	var ierr *IngestionError
	if !errors.As(err, &ierr) || ierr.Kind != "traversal" {
		t.Fatalf("expected traversal IngestionError, got %v", err)
	}
}
