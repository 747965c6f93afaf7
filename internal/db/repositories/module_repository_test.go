package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

var moduleCols = []string{
	"id", "slug", "name", "description", "category", "author", "version",
	"status", "status_message", "downloads", "tags", "compatibility",
	"dependencies", "content_hash", "storage_path", "submitted_by",
	"created_at", "updated_at",
}

var (
	testModuleID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testHash     = "deadbeef"
)

func sampleModuleRow(status string) *sqlmock.Rows {
	tags, _ := json.Marshal([]string{"pos", "inventory"})
	compat, _ := json.Marshal(models.Compatibility{MinVersion: "2.0.0"})
	deps, _ := json.Marshal([]models.Dependency{})
	return sqlmock.NewRows(moduleCols).AddRow(
		testModuleID.String(), "acme-inventory-sync", "Inventory Sync", nil, "integration",
		"acme", "1.2.0", status, nil, int64(0), tags, compat, deps,
		testHash, "modules/acme-inventory-sync/1.2.0.tar.gz", nil,
		time.Now(), time.Now(),
	)
}

func emptyModuleRow() *sqlmock.Rows {
	return sqlmock.NewRows(moduleCols)
}

func newModuleRepo(t *testing.T) (*ModuleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewModuleRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetByID / FindByContentHash
// ---------------------------------------------------------------------------

func TestModuleGetByID_Found(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.id").
		WithArgs(testModuleID.String()).
		WillReturnRows(sampleModuleRow("pending"))

	m, err := repo.GetByID(context.Background(), testModuleID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected module, got nil")
	}
	if m.Slug != "acme-inventory-sync" {
		t.Errorf("Slug = %s, want acme-inventory-sync", m.Slug)
	}
	if len(m.Tags.Data) != 2 {
		t.Errorf("Tags = %v, want 2 entries", m.Tags.Data)
	}
}

func TestModuleGetByID_NotFound(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.id").
		WithArgs("missing").
		WillReturnRows(emptyModuleRow())

	m, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil module for not found, got %v", m)
	}
}

func TestFindByContentHash_Found(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.content_hash").
		WithArgs(testHash).
		WillReturnRows(sampleModuleRow("qa_passed"))

	m, err := repo.FindByContentHash(context.Background(), testHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.ContentHash != testHash {
		t.Fatalf("expected module with hash %s, got %+v", testHash, m)
	}
}

func TestFindByContentHash_NotFound(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.content_hash").
		WithArgs("nope").
		WillReturnRows(emptyModuleRow())

	m, err := repo.FindByContentHash(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil, got %v", m)
	}
}

// ---------------------------------------------------------------------------
// ClaimForQA
// ---------------------------------------------------------------------------

func TestClaimForQA_Claims(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("UPDATE modules m.*SET status = 'qa_in_progress'.*WHERE m.id = .* AND m.status IN \\('pending', 'qa_error'\\).*RETURNING").
		WithArgs(testModuleID.String()).
		WillReturnRows(sampleModuleRow("qa_in_progress"))

	m, err := repo.ClaimForQA(context.Background(), testModuleID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected claimed module, got nil")
	}
	if m.Status != models.StatusQAInProgress {
		t.Errorf("Status = %s, want qa_in_progress", m.Status)
	}
}

func TestClaimForQA_AlreadyClaimed(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectQuery("UPDATE modules m.*RETURNING").
		WithArgs(testModuleID.String()).
		WillReturnRows(emptyModuleRow())

	m, err := repo.ClaimForQA(context.Background(), testModuleID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil for already-claimed module, got %+v", m)
	}
}

// ---------------------------------------------------------------------------
// TransitionStatus
// ---------------------------------------------------------------------------

func TestTransitionStatus_Succeeds(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectExec("UPDATE modules.*SET status = .*WHERE id = .* AND status = ANY").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), testModuleID.String(),
		[]models.ModuleStatus{models.StatusQAInProgress}, models.StatusQAPassed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransitionStatus_Conflict(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectExec("UPDATE modules.*SET status = .*WHERE id = .* AND status = ANY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The follow-up existence check finds the module, so the zero-row update
	// means a status conflict rather than a missing record.
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.id").
		WillReturnRows(sampleModuleRow("rejected"))

	err := repo.TransitionStatus(context.Background(), testModuleID.String(),
		[]models.ModuleStatus{models.StatusQAPassed}, models.StatusApproved, nil)
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
}

func TestTransitionStatus_NotFound(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectExec("UPDATE modules.*SET status = .*").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT.*FROM modules m WHERE m.id").
		WillReturnRows(emptyModuleRow())

	err := repo.TransitionStatus(context.Background(), testModuleID.String(),
		[]models.ModuleStatus{models.StatusQAPassed}, models.StatusApproved, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// CreateWithVersion
// ---------------------------------------------------------------------------

func TestCreateWithVersion_DuplicateHash(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WillReturnError(&duplicateKeyError{})
	mock.ExpectRollback()

	m := &models.Module{
		Slug: "dup", Name: "Dup", Category: models.CategoryUtility,
		Author: "acme", Version: "1.0.0", Status: models.StatusPending,
		ContentHash: testHash,
	}
	err := repo.CreateWithVersion(context.Background(), m, &models.ModuleVersion{Version: "1.0.0"})
	// A generic driver error is not translated; only *pq.Error 23505 maps to
	// ErrDuplicateContent. Here we just assert failure propagates.
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

type duplicateKeyError struct{}

func (*duplicateKeyError) Error() string { return "duplicate key value violates unique constraint" }

func TestCreateWithVersion_Succeeds(t *testing.T) {
	repo, mock := newModuleRepo(t)
	versionID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(testModuleID.String(), time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO module_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(versionID.String(), time.Now()))
	mock.ExpectCommit()

	m := &models.Module{
		Slug: "acme-inventory-sync", Name: "Inventory Sync",
		Category: models.CategoryIntegration, Author: "acme", Version: "1.2.0",
		Status: models.StatusPending, ContentHash: testHash,
		StoragePath: "modules/acme-inventory-sync/1.2.0.tar.gz",
	}
	v := &models.ModuleVersion{Version: "1.2.0", StoragePath: m.StoragePath, ContentHash: testHash}

	if err := repo.CreateWithVersion(context.Background(), m, v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != testModuleID {
		t.Errorf("module ID not populated from RETURNING")
	}
	if v.ModuleID != testModuleID {
		t.Errorf("version ModuleID = %s, want %s", v.ModuleID, testModuleID)
	}
}

func TestCreateWithVersion_ContentHashCollision(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_modules_content_hash"})
	mock.ExpectRollback()

	m := &models.Module{Slug: "dup", Version: "1.0.0", ContentHash: testHash}
	err := repo.CreateWithVersion(context.Background(), m, &models.ModuleVersion{Version: "1.0.0"})
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}
}

func TestCreateWithVersion_SlugCollisionIsNotContentDuplicate(t *testing.T) {
	repo, mock := newModuleRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO modules").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "modules_slug_key"})
	mock.ExpectRollback()

	m := &models.Module{Slug: "acme-inventory-sync", Version: "2.0.0", ContentHash: "newhash"}
	err := repo.CreateWithVersion(context.Background(), m, &models.ModuleVersion{Version: "2.0.0"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrDuplicateContent) {
		t.Error("a slug collision must not be reported as duplicate content")
	}
}

// ---------------------------------------------------------------------------
// AddVersion
// ---------------------------------------------------------------------------

func TestAddVersion_DeactivatesPriorAndResetsModule(t *testing.T) {
	repo, mock := newModuleRepo(t)
	versionID := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE module_versions SET is_active = false").
		WithArgs(testModuleID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO module_versions").
		WithArgs(testModuleID.String(), "2.0.0", nil,
			"modules/acme-inventory-sync/2.0.0.tar.gz", int64(2048), "newhash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(versionID.String(), now))
	mock.ExpectQuery("UPDATE modules").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	m := &models.Module{
		ID: testModuleID, Slug: "acme-inventory-sync", Name: "Inventory Sync",
		Category: models.CategoryIntegration, Version: "2.0.0",
		ContentHash: "newhash", StoragePath: "modules/acme-inventory-sync/2.0.0.tar.gz",
	}
	v := &models.ModuleVersion{
		Version: "2.0.0", StoragePath: m.StoragePath,
		SizeBytes: 2048, ContentHash: "newhash", IsActive: true,
	}

	if err := repo.AddVersion(context.Background(), m, v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != versionID {
		t.Errorf("version ID not populated from RETURNING")
	}
	if v.ModuleID != testModuleID {
		t.Errorf("version ModuleID = %s, want %s", v.ModuleID, testModuleID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAddVersion_DuplicateVersion(t *testing.T) {
	repo, mock := newModuleRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE module_versions SET is_active = false").
		WithArgs(testModuleID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO module_versions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "module_versions_module_id_version_key"})
	mock.ExpectRollback()

	m := &models.Module{ID: testModuleID, Slug: "acme-inventory-sync", Version: "1.2.0"}
	v := &models.ModuleVersion{Version: "1.2.0"}

	err := repo.AddVersion(context.Background(), m, v)
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListVersions semver ordering
// ---------------------------------------------------------------------------

func TestListVersions_SemverDescending(t *testing.T) {
	repo, mock := newModuleRepo(t)
	cols := []string{"id", "module_id", "version", "changelog", "storage_path", "size_bytes", "content_hash", "is_active", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(uuid.NewString(), testModuleID.String(), "1.2.0", nil, "p", int64(1), "h1", true, time.Now()).
		AddRow(uuid.NewString(), testModuleID.String(), "1.10.0", nil, "p", int64(1), "h2", true, time.Now()).
		AddRow(uuid.NewString(), testModuleID.String(), "0.9.0", nil, "p", int64(1), "h3", true, time.Now())
	mock.ExpectQuery("SELECT.*FROM module_versions.*WHERE module_id").
		WithArgs(testModuleID.String()).
		WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background(), testModuleID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"1.10.0", "1.2.0", "0.9.0"}
	for i, w := range want {
		if versions[i].Version != w {
			t.Errorf("versions[%d] = %s, want %s", i, versions[i].Version, w)
		}
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearch_WithFiltersAndQASummary(t *testing.T) {
	repo, mock := newModuleRepo(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM modules m").
		WithArgs("integration").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	tags, _ := json.Marshal([]string{})
	compat, _ := json.Marshal(models.Compatibility{})
	deps, _ := json.Marshal([]models.Dependency{})
	listCols := append(append([]string{}, moduleCols...), "overall_score", "recommendation", "run_count")
	mock.ExpectQuery("SELECT.*FROM modules m.*LEFT JOIN LATERAL").
		WithArgs("integration", 20, 0).
		WillReturnRows(sqlmock.NewRows(listCols).AddRow(
			testModuleID.String(), "acme-inventory-sync", "Inventory Sync", nil, "integration",
			"acme", "1.2.0", "qa_passed", nil, int64(3), tags, compat, deps,
			testHash, "p", nil, time.Now(), time.Now(),
			82.5, "approve", 2,
		))

	items, total, err := repo.Search(context.Background(), SearchFilters{
		Category: "integration", Limit: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total = %d, items = %d, want 1/1", total, len(items))
	}
	if items[0].OverallScore == nil || *items[0].OverallScore != 82.5 {
		t.Errorf("OverallScore = %v, want 82.5", items[0].OverallScore)
	}
	if items[0].QARunCount != 2 {
		t.Errorf("QARunCount = %d, want 2", items[0].QARunCount)
	}
}
