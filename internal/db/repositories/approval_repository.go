// approval_repository.go implements ApprovalRepository. The partial unique
// index on (target_kind, target_id) WHERE status = 'pending' enforces at most
// one open workflow per target; decisions are guarded by a conditional UPDATE
// so two approvers cannot both decide the same workflow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// ApprovalRepository handles database operations for approval workflows
type ApprovalRepository struct {
	db *sql.DB
}

// NewApprovalRepository creates a new approval workflow repository
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const workflowColumns = `
	id, workflow_type, target_kind, target_id, requester_id, approver_id,
	status, request_data, decision_data, comment, decided_by, decided_at,
	created_at, updated_at`

func scanWorkflow(row interface{ Scan(...interface{}) error }) (*models.ApprovalWorkflow, error) {
	w := &models.ApprovalWorkflow{}
	err := row.Scan(
		&w.ID,
		&w.WorkflowType,
		&w.TargetKind,
		&w.TargetID,
		&w.RequesterID,
		&w.ApproverID,
		&w.Status,
		&w.RequestData,
		&w.DecisionData,
		&w.Comment,
		&w.DecidedBy,
		&w.DecidedAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Create inserts a pending workflow. Returns ErrPendingWorkflowExists when an
// open workflow already targets the same (target_kind, target_id).
func (r *ApprovalRepository) Create(ctx context.Context, w *models.ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows
		  (workflow_type, target_kind, target_id, requester_id, approver_id, status, request_data)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING id, status, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		w.WorkflowType,
		w.TargetKind,
		w.TargetID,
		w.RequesterID,
		w.ApproverID,
		w.RequestData,
	).Scan(&w.ID, &w.Status, &w.CreatedAt, &w.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrPendingWorkflowExists
		}
		return fmt.Errorf("failed to create approval workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by its UUID
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_workflows WHERE id = $1`, workflowColumns)

	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get approval workflow: %w", err)
	}
	return w, nil
}

// GetPendingForTarget returns the open workflow for a target, or nil when no
// workflow is pending.
func (r *ApprovalRepository) GetPendingForTarget(ctx context.Context, kind models.TargetKind, targetID string) (*models.ApprovalWorkflow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM approval_workflows
		WHERE target_kind = $1 AND target_id = $2 AND status = 'pending'
	`, workflowColumns)

	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, kind, targetID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No open workflow
		}
		return nil, fmt.Errorf("failed to get pending workflow for target: %w", err)
	}
	return w, nil
}

// ListForTarget returns every workflow ever opened for a target, newest
// first. Used by the module detail view to show approval history.
func (r *ApprovalRepository) ListForTarget(ctx context.Context, kind models.TargetKind, targetID string) ([]*models.ApprovalWorkflow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM approval_workflows
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY created_at DESC
	`, workflowColumns)

	rows, err := r.db.QueryContext(ctx, query, kind, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows for target: %w", err)
	}
	defer rows.Close()

	var workflows []*models.ApprovalWorkflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval workflow: %w", err)
		}
		workflows = append(workflows, w)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows for target: %w", err)
	}
	return workflows, nil
}

// Decide atomically records a decision on a pending workflow. The conditional
// UPDATE guarantees a workflow is decided exactly once; a second decision
// returns ErrWorkflowDecided (or ErrNotFound when the workflow never existed).
func (r *ApprovalRepository) Decide(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, comment *string, decisionData models.JSONB[models.Payload]) (*models.ApprovalWorkflow, error) {
	query := fmt.Sprintf(`
		UPDATE approval_workflows
		SET status = $1, decided_by = $2, comment = $3, decision_data = $4,
		    decided_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status = 'pending'
		RETURNING %s
	`, workflowColumns)

	w, err := scanWorkflow(r.db.QueryRowContext(ctx, query, status, decidedBy, comment, decisionData, id))
	if err != nil {
		if err == sql.ErrNoRows {
			existing, err := r.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, ErrNotFound
			}
			return nil, ErrWorkflowDecided
		}
		return nil, fmt.Errorf("failed to decide approval workflow: %w", err)
	}

	return w, nil
}

// ListFilters narrows the workflow listing. Zero values mean "no filter".
type ListFilters struct {
	Status     string
	TargetKind string
	Requester  string
	Limit      int
	Offset     int
}

// List returns workflows matching the filters, newest first.
func (r *ApprovalRepository) List(ctx context.Context, filters ListFilters) ([]*models.ApprovalWorkflow, int, error) {
	whereClause := "WHERE 1=1"
	var args []interface{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
	}
	if filters.TargetKind != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND target_kind = $%d", argCount)
		args = append(args, filters.TargetKind)
	}
	if filters.Requester != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND requester_id = $%d", argCount)
		args = append(args, filters.Requester)
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM approval_workflows %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count approval workflows: %w", err)
	}

	listSQL := fmt.Sprintf(`
		SELECT %s FROM approval_workflows
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, workflowColumns, whereClause, argCount+1, argCount+2)

	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.QueryContext(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list approval workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.ApprovalWorkflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan approval workflow: %w", err)
		}
		workflows = append(workflows, w)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating approval workflows: %w", err)
	}

	return workflows, total, nil
}
