// Package approval implements the generic human-decision workflow: a pending
// record over a target entity, decided exactly once by an authorized actor,
// with a per-kind side effect dispatched on decision.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/notify"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
)

var (
	// ErrInvalidTarget covers unknown kinds and missing target entities.
	ErrInvalidTarget = errors.New("invalid workflow target")
	// ErrUnauthorized is returned when the actor may not act on the workflow.
	ErrUnauthorized = errors.New("actor is not authorized for this workflow")
	// ErrNoApprover is returned when no administrator exists to assign.
	ErrNoApprover = errors.New("no active administrator available as approver")
)

// Service coordinates workflow creation and decisions.
type Service struct {
	logger    *slog.Logger
	workflows *repositories.ApprovalRepository
	users     *repositories.UserRepository
	notifier  notify.Notifier
	targets   map[models.TargetKind]TargetHandler
}

// NewService wires the dispatch table for the built-in target kinds.
func NewService(logger *slog.Logger, workflows *repositories.ApprovalRepository, users *repositories.UserRepository, modules *repositories.ModuleRepository, notifier notify.Notifier) *Service {
	return &Service{
		logger:    logger,
		workflows: workflows,
		users:     users,
		notifier:  notifier,
		targets: map[models.TargetKind]TargetHandler{
			models.TargetModule:             &moduleTarget{modules: modules},
			models.TargetUser:               &userTarget{users: users},
			models.TargetImprovementRequest: recordOnlyTarget{},
			models.TargetAISuggestion:       recordOnlyTarget{},
		},
	}
}

// CreateRequest carries the inputs for a new workflow.
type CreateRequest struct {
	WorkflowType string
	TargetKind   models.TargetKind
	TargetID     string
	RequesterID  uuid.UUID
	ApproverID   *uuid.UUID
	RequestData  models.Payload
}

// Create opens a pending workflow. The target must exist, at most one pending
// workflow may exist per target, and an unassigned approver defaults to an
// active administrator.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.ApprovalWorkflow, error) {
	handler, err := s.handlerFor(req.TargetKind)
	if err != nil {
		return nil, err
	}

	exists, err := handler.Exists(ctx, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to check workflow target: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s %s not found", ErrInvalidTarget, req.TargetKind, req.TargetID)
	}

	approverID := req.ApproverID
	if approverID == nil {
		admins, err := s.users.ListAdmins(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to pick default approver: %w", err)
		}
		if len(admins) == 0 {
			return nil, ErrNoApprover
		}
		approverID = &admins[0].ID
	}

	workflow := &models.ApprovalWorkflow{
		WorkflowType: req.WorkflowType,
		TargetKind:   req.TargetKind,
		TargetID:     req.TargetID,
		RequesterID:  req.RequesterID,
		ApproverID:   approverID,
		RequestData:  models.JSONB[models.Payload]{Data: req.RequestData},
	}
	if err := s.workflows.Create(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.Info("approval workflow created",
		"workflow_id", workflow.ID,
		"target_kind", workflow.TargetKind,
		"target_id", workflow.TargetID)
	return workflow, nil
}

// Approve decides a workflow positively and applies the target side effect.
func (s *Service) Approve(ctx context.Context, workflowID string, actor *models.User, comment *string, decisionData models.Payload) (*models.ApprovalWorkflow, error) {
	return s.decide(ctx, workflowID, actor, models.ApprovalStatusApproved, comment, decisionData)
}

// Reject decides a workflow negatively and applies the target side effect.
func (s *Service) Reject(ctx context.Context, workflowID string, actor *models.User, comment *string, decisionData models.Payload) (*models.ApprovalWorkflow, error) {
	return s.decide(ctx, workflowID, actor, models.ApprovalStatusRejected, comment, decisionData)
}

// Cancel withdraws a pending workflow. Only the requester may cancel; no
// target side effect runs.
func (s *Service) Cancel(ctx context.Context, workflowID string, actor *models.User) (*models.ApprovalWorkflow, error) {
	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, repositories.ErrNotFound
	}
	if workflow.RequesterID != actor.ID {
		return nil, fmt.Errorf("%w: only the requester may cancel", ErrUnauthorized)
	}

	decided, err := s.workflows.Decide(ctx, workflowID, models.ApprovalStatusCancelled, actor.ID.String(), nil, models.JSONB[models.Payload]{})
	if err != nil {
		return nil, err
	}

	telemetry.ApprovalDecisionsTotal.WithLabelValues(string(decided.TargetKind), string(decided.Status)).Inc()
	return decided, nil
}

func (s *Service) decide(ctx context.Context, workflowID string, actor *models.User, status models.ApprovalStatus, comment *string, decisionData models.Payload) (*models.ApprovalWorkflow, error) {
	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, repositories.ErrNotFound
	}
	if !s.canDecide(actor, workflow) {
		return nil, fmt.Errorf("%w: admin or assigned approver required", ErrUnauthorized)
	}

	handler, err := s.handlerFor(workflow.TargetKind)
	if err != nil {
		return nil, err
	}

	decided, err := s.workflows.Decide(ctx, workflowID, status, actor.ID.String(), comment, models.JSONB[models.Payload]{Data: decisionData})
	if err != nil {
		return nil, err
	}

	// The decision is authoritative once recorded; a failed side effect is
	// surfaced but never undoes it.
	if err := handler.Apply(ctx, decided.TargetID, status); err != nil {
		s.logger.Error("workflow side effect failed",
			"workflow_id", decided.ID,
			"target_kind", decided.TargetKind,
			"target_id", decided.TargetID,
			"error", err)
		return decided, fmt.Errorf("decision recorded but side effect failed: %w", err)
	}

	telemetry.ApprovalDecisionsTotal.WithLabelValues(string(decided.TargetKind), string(decided.Status)).Inc()
	s.logger.Info("approval workflow decided",
		"workflow_id", decided.ID,
		"status", decided.Status,
		"decided_by", actor.ID)

	s.sendDecisionMail(ctx, decided)
	return decided, nil
}

// sendDecisionMail tells the requester their workflow was decided. Delivery
// is fire-and-forget; failures never surface to the deciding actor.
func (s *Service) sendDecisionMail(ctx context.Context, workflow *models.ApprovalWorkflow) {
	requester, err := s.users.GetUserByID(ctx, workflow.RequesterID.String())
	if err != nil {
		s.logger.Warn("failed to load requester for notification",
			"workflow_id", workflow.ID, "error", err)
		return
	}
	if requester == nil {
		return
	}
	if err := s.notifier.ApprovalDecided(ctx, []string{requester.Email}, workflow); err != nil {
		s.logger.Warn("failed to send decision mail",
			"workflow_id", workflow.ID, "error", err)
	}
}

// canDecide allows administrators and the assigned approver.
func (s *Service) canDecide(actor *models.User, workflow *models.ApprovalWorkflow) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return workflow.ApproverID != nil && *workflow.ApproverID == actor.ID
}

// Get returns a workflow by ID.
func (s *Service) Get(ctx context.Context, workflowID string) (*models.ApprovalWorkflow, error) {
	return s.workflows.GetByID(ctx, workflowID)
}

// List returns workflows matching the filters plus the unpaginated total.
func (s *Service) List(ctx context.Context, filters repositories.ListFilters) ([]*models.ApprovalWorkflow, int, error) {
	return s.workflows.List(ctx, filters)
}
