// qa_repository.go implements QARepository. QA results are append-only: each
// run inserts a new row and existing rows are never updated, preserving the
// full analysis history for a module.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// QARepository handles database operations for QA results
type QARepository struct {
	db *sql.DB
}

// NewQARepository creates a new QA result repository
func NewQARepository(db *sql.DB) *QARepository {
	return &QARepository{db: db}
}

const qaResultColumns = `
	id, module_id, tests, findings, quality, degraded_probes,
	security_score, overall_score, recommendation, created_at`

// Create inserts a QA result row for a completed run.
func (r *QARepository) Create(ctx context.Context, result *models.QAResult) error {
	query := `
		INSERT INTO qa_results
		  (module_id, tests, findings, quality, degraded_probes, security_score, overall_score, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		result.ModuleID,
		result.Tests,
		result.Findings,
		result.Quality,
		result.DegradedProbes,
		result.SecurityScore,
		result.OverallScore,
		result.Recommendation,
	).Scan(&result.ID, &result.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create QA result: %w", err)
	}
	return nil
}

// GetLatestForModule returns the most recent QA result for a module, or nil
// when the module has never been analyzed.
func (r *QARepository) GetLatestForModule(ctx context.Context, moduleID string) (*models.QAResult, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM qa_results
		WHERE module_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, qaResultColumns)

	result := &models.QAResult{}
	err := r.db.QueryRowContext(ctx, query, moduleID).Scan(
		&result.ID,
		&result.ModuleID,
		&result.Tests,
		&result.Findings,
		&result.Quality,
		&result.DegradedProbes,
		&result.SecurityScore,
		&result.OverallScore,
		&result.Recommendation,
		&result.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Never analyzed
		}
		return nil, fmt.Errorf("failed to get latest QA result: %w", err)
	}

	return result, nil
}

// ListForModule returns all QA results for a module, newest first.
func (r *QARepository) ListForModule(ctx context.Context, moduleID string) ([]*models.QAResult, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM qa_results
		WHERE module_id = $1
		ORDER BY created_at DESC
	`, qaResultColumns)

	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list QA results: %w", err)
	}
	defer rows.Close()

	var results []*models.QAResult
	for rows.Next() {
		result := &models.QAResult{}
		err := rows.Scan(
			&result.ID,
			&result.ModuleID,
			&result.Tests,
			&result.Findings,
			&result.Quality,
			&result.DegradedProbes,
			&result.SecurityScore,
			&result.OverallScore,
			&result.Recommendation,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan QA result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
