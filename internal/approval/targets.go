package approval

import (
	"context"
	"fmt"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
)

// TargetHandler binds a target kind into the workflow. Exists guards workflow
// creation against dangling targets; Apply runs the decision side effect.
// New target kinds register a handler instead of branching existing code.
type TargetHandler interface {
	Exists(ctx context.Context, targetID string) (bool, error)
	Apply(ctx context.Context, targetID string, decision models.ApprovalStatus) error
}

// moduleTarget publishes or rejects a module when its workflow is decided.
type moduleTarget struct {
	modules *repositories.ModuleRepository
}

func (t *moduleTarget) Exists(ctx context.Context, targetID string) (bool, error) {
	m, err := t.modules.GetByID(ctx, targetID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (t *moduleTarget) Apply(ctx context.Context, targetID string, decision models.ApprovalStatus) error {
	// Only modules that cleared or survived QA review are decidable.
	from := []models.ModuleStatus{models.StatusQAPassed, models.StatusQAReviewNeeded}

	switch decision {
	case models.ApprovalStatusApproved:
		return t.modules.TransitionStatus(ctx, targetID, from, models.StatusApproved, nil)
	case models.ApprovalStatusRejected:
		msg := "rejected by approval workflow"
		return t.modules.TransitionStatus(ctx, targetID, from, models.StatusRejected, &msg)
	default:
		return nil
	}
}

// userTarget activates or disables an account on decision.
type userTarget struct {
	users *repositories.UserRepository
}

func (t *userTarget) Exists(ctx context.Context, targetID string) (bool, error) {
	u, err := t.users.GetUserByID(ctx, targetID)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

func (t *userTarget) Apply(ctx context.Context, targetID string, decision models.ApprovalStatus) error {
	switch decision {
	case models.ApprovalStatusApproved:
		return t.users.UpdateStatus(ctx, targetID, models.UserStatusActive)
	case models.ApprovalStatusRejected:
		return t.users.UpdateStatus(ctx, targetID, models.UserStatusDisabled)
	default:
		return nil
	}
}

// recordOnlyTarget is for kinds whose decision lives entirely on the workflow
// row; improvement requests and AI suggestions are tracked elsewhere and have
// no registry-side state to flip.
type recordOnlyTarget struct{}

func (recordOnlyTarget) Exists(context.Context, string) (bool, error) { return true, nil }
func (recordOnlyTarget) Apply(context.Context, string, models.ApprovalStatus) error {
	return nil
}

func (s *Service) handlerFor(kind models.TargetKind) (TargetHandler, error) {
	handler, ok := s.targets[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown target kind %s", ErrInvalidTarget, kind)
	}
	return handler, nil
}
