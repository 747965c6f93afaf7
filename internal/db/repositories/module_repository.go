// module_repository.go implements ModuleRepository, providing database queries
// for module CRUD, content-hash duplicate detection, lifecycle status
// transitions, and catalog search.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/lib/pq"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// ModuleRepository handles database operations for modules
type ModuleRepository struct {
	db *sql.DB
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(db *sql.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleColumns = `
	m.id, m.slug, m.name, m.description, m.category, m.author, m.version,
	m.status, m.status_message, m.downloads, m.tags, m.compatibility,
	m.dependencies, m.content_hash, m.storage_path, m.submitted_by,
	m.created_at, m.updated_at`

func scanModule(row interface{ Scan(...interface{}) error }) (*models.Module, error) {
	m := &models.Module{}
	err := row.Scan(
		&m.ID,
		&m.Slug,
		&m.Name,
		&m.Description,
		&m.Category,
		&m.Author,
		&m.Version,
		&m.Status,
		&m.StatusMessage,
		&m.Downloads,
		&m.Tags,
		&m.Compatibility,
		&m.Dependencies,
		&m.ContentHash,
		&m.StoragePath,
		&m.SubmittedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateWithVersion inserts a module and its initial version row in one
// transaction. Returns ErrDuplicateContent when another module already
// carries the same content hash.
func (r *ModuleRepository) CreateWithVersion(ctx context.Context, module *models.Module, version *models.ModuleVersion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO modules
		  (slug, name, description, category, author, version, status, tags,
		   compatibility, dependencies, content_hash, storage_path, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, query,
		module.Slug,
		module.Name,
		module.Description,
		module.Category,
		module.Author,
		module.Version,
		module.Status,
		module.Tags,
		module.Compatibility,
		module.Dependencies,
		module.ContentHash,
		module.StoragePath,
		module.SubmittedBy,
	).Scan(&module.ID, &module.CreatedAt, &module.UpdatedAt)

	if err != nil {
		// Only the content-hash index maps to ErrDuplicateContent. A slug
		// collision here means two first registrations raced; the caller
		// routes existing slugs through AddVersion instead.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == "idx_modules_content_hash" {
			return ErrDuplicateContent
		}
		return fmt.Errorf("failed to create module: %w", err)
	}

	versionQuery := `
		INSERT INTO module_versions (module_id, version, changelog, storage_path, size_bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	version.ModuleID = module.ID
	err = tx.QueryRowContext(ctx, versionQuery,
		version.ModuleID,
		version.Version,
		version.Changelog,
		version.StoragePath,
		version.SizeBytes,
		version.ContentHash,
	).Scan(&version.ID, &version.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create module version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit module creation: %w", err)
	}

	return nil
}

// AddVersion appends a new version to an existing module and resets it for
// QA, all in one transaction: the previous active version row is deactivated
// so exactly one version stays active, the new row is inserted, and the
// modules row is refreshed from the new manifest. Returns ErrDuplicateVersion
// when the version string is already recorded for this module.
func (r *ModuleRepository) AddVersion(ctx context.Context, module *models.Module, version *models.ModuleVersion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deactivate := `UPDATE module_versions SET is_active = false WHERE module_id = $1 AND is_active`
	if _, err := tx.ExecContext(ctx, deactivate, module.ID); err != nil {
		return fmt.Errorf("failed to deactivate prior version: %w", err)
	}

	versionQuery := `
		INSERT INTO module_versions (module_id, version, changelog, storage_path, size_bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	version.ModuleID = module.ID
	err = tx.QueryRowContext(ctx, versionQuery,
		version.ModuleID,
		version.Version,
		version.Changelog,
		version.StoragePath,
		version.SizeBytes,
		version.ContentHash,
	).Scan(&version.ID, &version.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("failed to create module version: %w", err)
	}

	moduleQuery := `
		UPDATE modules
		SET name = $1, description = $2, category = $3, version = $4,
		    status = 'pending', status_message = NULL, tags = $5,
		    compatibility = $6, dependencies = $7, content_hash = $8,
		    storage_path = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING updated_at
	`

	err = tx.QueryRowContext(ctx, moduleQuery,
		module.Name,
		module.Description,
		module.Category,
		module.Version,
		module.Tags,
		module.Compatibility,
		module.Dependencies,
		module.ContentHash,
		module.StoragePath,
		module.ID,
	).Scan(&module.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == "idx_modules_content_hash" {
			return ErrDuplicateContent
		}
		return fmt.Errorf("failed to update module for new version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit module version: %w", err)
	}

	return nil
}

// GetByID retrieves a module by its UUID
func (r *ModuleRepository) GetByID(ctx context.Context, id string) (*models.Module, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules m WHERE m.id = $1`, moduleColumns)

	m, err := scanModule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get module by ID: %w", err)
	}
	return m, nil
}

// GetBySlug retrieves a module by its slug
func (r *ModuleRepository) GetBySlug(ctx context.Context, slug string) (*models.Module, error) {
	query := fmt.Sprintf(`SELECT %s FROM modules m WHERE m.slug = $1`, moduleColumns)

	m, err := scanModule(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get module by slug: %w", err)
	}
	return m, nil
}

// FindByContentHash retrieves the live module registered with the given
// content hash, or nil when no module carries it. Failed and rejected modules
// do not block resubmission of the same content, so they are excluded here to
// mirror the partial unique index on content_hash.
func (r *ModuleRepository) FindByContentHash(ctx context.Context, hash string) (*models.Module, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM modules m
		WHERE m.content_hash = $1 AND m.status NOT IN ('qa_failed', 'rejected')
	`, moduleColumns)

	m, err := scanModule(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to find module by content hash: %w", err)
	}
	return m, nil
}

// ClaimForQA atomically moves a module into qa_in_progress. Only modules in
// pending or qa_error can be claimed; the conditional UPDATE guarantees that
// concurrent workers cannot both claim the same module. Returns the claimed
// module, or nil when the module is absent or already claimed.
func (r *ModuleRepository) ClaimForQA(ctx context.Context, id string) (*models.Module, error) {
	query := fmt.Sprintf(`
		UPDATE modules m
		SET status = 'qa_in_progress', status_message = NULL, updated_at = NOW()
		WHERE m.id = $1 AND m.status IN ('pending', 'qa_error')
		RETURNING %s
	`, moduleColumns)

	m, err := scanModule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Absent or not claimable
		}
		return nil, fmt.Errorf("failed to claim module for QA: %w", err)
	}
	return m, nil
}

// TransitionStatus moves a module from one of the expected statuses to the
// target status. Returns ErrStatusConflict when the module is not currently
// in any of the expected statuses, ErrNotFound when it does not exist.
func (r *ModuleRepository) TransitionStatus(ctx context.Context, id string, from []models.ModuleStatus, to models.ModuleStatus, message *string) error {
	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}

	query := `
		UPDATE modules
		SET status = $1, status_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	result, err := r.db.ExecContext(ctx, query, to, message, id, pq.Array(expected))
	if err != nil {
		return fmt.Errorf("failed to transition module status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing module from a status conflict.
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		return ErrStatusConflict
	}

	return nil
}

// IncrementDownloads bumps the download counter for a module.
func (r *ModuleRepository) IncrementDownloads(ctx context.Context, id string) error {
	query := `UPDATE modules SET downloads = downloads + 1 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	return nil
}

// FindStuckInQA returns modules that have sat in qa_in_progress longer than
// maxAgeMinutes, typically because a worker crashed mid-run.
func (r *ModuleRepository) FindStuckInQA(ctx context.Context, maxAgeMinutes int) ([]*models.Module, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM modules m
		WHERE m.status = 'qa_in_progress'
		  AND m.updated_at < NOW() - ($1 || ' minutes')::interval
		ORDER BY m.updated_at ASC
	`, moduleColumns)

	return r.queryModules(ctx, query, maxAgeMinutes)
}

// FindAgedPending returns pending modules older than maxAgeMinutes, which
// indicates their queue entry was lost (process restart with the in-memory
// backend, or a failed enqueue).
func (r *ModuleRepository) FindAgedPending(ctx context.Context, maxAgeMinutes int) ([]*models.Module, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM modules m
		WHERE m.status = 'pending'
		  AND m.updated_at < NOW() - ($1 || ' minutes')::interval
		ORDER BY m.updated_at ASC
	`, moduleColumns)

	return r.queryModules(ctx, query, maxAgeMinutes)
}

func (r *ModuleRepository) queryModules(ctx context.Context, query string, args ...interface{}) ([]*models.Module, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	var modules []*models.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}

	return modules, rows.Err()
}

// SearchFilters narrows the catalog listing. Zero values mean "no filter".
type SearchFilters struct {
	Query    string
	Category string
	Status   string
	Author   string
	Limit    int
	Offset   int
}

// Search returns modules matching the filters along with their latest QA
// summary and run count in a single query via a lateral join, avoiding a
// per-module lookup loop.
func (r *ModuleRepository) Search(ctx context.Context, filters SearchFilters) ([]*models.ModuleListItem, int, error) {
	var whereClauses []string
	var args []interface{}
	argCount := 0

	if filters.Query != "" {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("(m.name ILIKE $%d OR m.slug ILIKE $%d OR m.description ILIKE $%d)", argCount, argCount, argCount))
		args = append(args, "%"+filters.Query+"%")
	}
	if filters.Category != "" {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("m.category = $%d", argCount))
		args = append(args, filters.Category)
	}
	if filters.Status != "" {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("m.status = $%d", argCount))
		args = append(args, filters.Status)
	}
	if filters.Author != "" {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("m.author = $%d", argCount))
		args = append(args, filters.Author)
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM modules m %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count modules: %w", err)
	}

	searchSQL := fmt.Sprintf(`
		SELECT %s,
		       qa.overall_score, qa.recommendation, COALESCE(agg.run_count, 0) AS run_count
		FROM modules m
		LEFT JOIN LATERAL (
			SELECT q.overall_score, q.recommendation
			FROM qa_results q
			WHERE q.module_id = m.id
			ORDER BY q.created_at DESC
			LIMIT 1
		) qa ON true
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS run_count FROM qa_results q2 WHERE q2.module_id = m.id
		) agg ON true
		%s
		ORDER BY m.created_at DESC
		LIMIT $%d OFFSET $%d
	`, moduleColumns, whereClause, argCount+1, argCount+2)

	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.QueryContext(ctx, searchSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search modules: %w", err)
	}
	defer rows.Close()

	var items []*models.ModuleListItem
	for rows.Next() {
		item := &models.ModuleListItem{}
		err := rows.Scan(
			&item.ID,
			&item.Slug,
			&item.Name,
			&item.Description,
			&item.Category,
			&item.Author,
			&item.Version,
			&item.Status,
			&item.StatusMessage,
			&item.Downloads,
			&item.Tags,
			&item.Compatibility,
			&item.Dependencies,
			&item.ContentHash,
			&item.StoragePath,
			&item.SubmittedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.OverallScore,
			&item.Recommendation,
			&item.QARunCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan module list item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating module list items: %w", err)
	}

	return items, total, nil
}

// ListVersions retrieves all versions for a module, newest semver first.
func (r *ModuleRepository) ListVersions(ctx context.Context, moduleID string) ([]*models.ModuleVersion, error) {
	query := `
		SELECT id, module_id, version, changelog, storage_path, size_bytes, content_hash, is_active, created_at
		FROM module_versions
		WHERE module_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list module versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.ModuleVersion
	for rows.Next() {
		v := &models.ModuleVersion{}
		err := rows.Scan(
			&v.ID,
			&v.ModuleID,
			&v.Version,
			&v.Changelog,
			&v.StoragePath,
			&v.SizeBytes,
			&v.ContentHash,
			&v.IsActive,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module version: %w", err)
		}
		versions = append(versions, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating module versions: %w", err)
	}

	// Semver descending; unparseable versions sort last.
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := goversion.NewVersion(versions[i].Version)
		vj, errj := goversion.NewVersion(versions[j].Version)
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return vi.GreaterThan(vj)
	})

	return versions, nil
}
