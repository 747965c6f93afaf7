// Package models - approval.go defines the generic ApprovalWorkflow model used
// for module publication review and for unrelated approval flows (user
// onboarding, improvement requests, AI-suggestion review).
package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus represents the status of an approval workflow.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// IsTerminal reports whether the workflow can no longer be decided.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalStatusPending
}

// TargetKind identifies what an approval workflow decides about. New kinds are
// added by registering a handler in the approval package's dispatch table, not
// by editing existing branches.
type TargetKind string

const (
	TargetModule             TargetKind = "module"
	TargetUser               TargetKind = "user"
	TargetImprovementRequest TargetKind = "improvement_request"
	TargetAISuggestion       TargetKind = "ai_suggestion"
)

// Payload is a free-form JSON object carried on a workflow (request context or
// decision context).
type Payload map[string]interface{}

// ApprovalWorkflow is a single human-decision record over a target entity.
// At most one pending workflow may exist per (target_kind, target_id); decision
// fields are set exactly once.
type ApprovalWorkflow struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	WorkflowType string         `db:"workflow_type" json:"workflow_type"`
	TargetKind   TargetKind     `db:"target_kind" json:"target_kind"`
	TargetID     string         `db:"target_id" json:"target_id"`
	RequesterID  uuid.UUID      `db:"requester_id" json:"requester_id"`
	ApproverID   *uuid.UUID     `db:"approver_id" json:"approver_id,omitempty"`
	Status       ApprovalStatus `db:"status" json:"status"`
	RequestData  JSONB[Payload] `db:"request_data" json:"request_data,omitempty"`
	DecisionData JSONB[Payload] `db:"decision_data" json:"decision_data,omitempty"`
	Comment      *string        `db:"comment" json:"comment,omitempty"`
	DecidedBy    *uuid.UUID     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}
