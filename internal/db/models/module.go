// Package models - module.go defines the Module and ModuleVersion models for
// marketplace plugin packages and their lifecycle through the QA pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ModuleStatus is the lifecycle status of a module in the pipeline.
type ModuleStatus string

const (
	StatusPending        ModuleStatus = "pending"
	StatusQAInProgress   ModuleStatus = "qa_in_progress"
	StatusQAPassed       ModuleStatus = "qa_passed"
	StatusQAFailed       ModuleStatus = "qa_failed"
	StatusQAReviewNeeded ModuleStatus = "qa_review_needed"
	StatusQAError        ModuleStatus = "qa_error"
	StatusApproved       ModuleStatus = "approved"
	StatusRejected       ModuleStatus = "rejected"
	StatusPublished      ModuleStatus = "published"
)

// IsTerminalQAFailure reports whether the status blocks re-analysis without a
// new submission.
func (s ModuleStatus) IsTerminalQAFailure() bool {
	return s == StatusQAFailed || s == StatusRejected
}

// ModuleCategory enumerates the supported plugin categories.
type ModuleCategory string

const (
	CategoryTest         ModuleCategory = "test"
	CategorySecurity     ModuleCategory = "security"
	CategoryUtility      ModuleCategory = "utility"
	CategoryAnalytics    ModuleCategory = "analytics"
	CategoryIntegration  ModuleCategory = "integration"
	CategoryNotification ModuleCategory = "notification"
)

// ValidCategories is the closed set a manifest's category must belong to.
var ValidCategories = map[ModuleCategory]bool{
	CategoryTest:         true,
	CategorySecurity:     true,
	CategoryUtility:      true,
	CategoryAnalytics:    true,
	CategoryIntegration:  true,
	CategoryNotification: true,
}

// ValidIndustries is the closed set of industries a compatibility descriptor
// may reference.
var ValidIndustries = map[string]bool{
	"restaurant": true,
	"retail":     true,
	"cafe":       true,
	"bakery":     true,
	"franchise":  true,
}

// Compatibility describes the host platform and business segments a module
// version supports.
type Compatibility struct {
	MinVersion string   `json:"min_version,omitempty"`
	MaxVersion string   `json:"max_version,omitempty"`
	Industries []string `json:"industries,omitempty"`
	Brands     []string `json:"brands,omitempty"`
}

// Dependency is a single declared dependency of a module: a name plus a
// version constraint understood by hashicorp/go-version (e.g. ">= 1.2, < 2.0").
type Dependency struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// Module represents a registered plugin package. The Slug is the stable
// identity derived from author and name; the row ID is the surrogate key.
type Module struct {
	ID            uuid.UUID            `db:"id" json:"id"`
	Slug          string               `db:"slug" json:"slug"`
	Name          string               `db:"name" json:"name"`
	Description   *string              `db:"description" json:"description,omitempty"`
	Category      ModuleCategory       `db:"category" json:"category"`
	Author        string               `db:"author" json:"author"`
	Version       string               `db:"version" json:"version"`
	Status        ModuleStatus         `db:"status" json:"status"`
	StatusMessage *string              `db:"status_message" json:"status_message,omitempty"`
	Downloads     int64                `db:"downloads" json:"downloads"`
	Tags          JSONB[[]string]      `db:"tags" json:"tags"`
	Compatibility JSONB[Compatibility] `db:"compatibility" json:"compatibility"`
	Dependencies  JSONB[[]Dependency]  `db:"dependencies" json:"dependencies"`
	ContentHash   string               `db:"content_hash" json:"content_hash"`
	StoragePath   string               `db:"storage_path" json:"storage_path"`
	SubmittedBy   *uuid.UUID           `db:"submitted_by" json:"submitted_by,omitempty"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updated_at"`
}

// ModuleVersion represents one ordered version of a module. Exactly one
// version per module carries is_active=true at any time.
type ModuleVersion struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ModuleID    uuid.UUID `db:"module_id" json:"module_id"`
	Version     string    `db:"version" json:"version"`
	Changelog   *string   `db:"changelog" json:"changelog,omitempty"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ModuleListItem is returned by catalog listings and carries the latest QA
// summary alongside the module row, fetched in a single query to avoid N+1
// lookups.
type ModuleListItem struct {
	Module
	OverallScore   *float64 `db:"overall_score" json:"overall_score,omitempty"`
	Recommendation *string  `db:"recommendation" json:"recommendation,omitempty"`
	QARunCount     int64    `db:"qa_run_count" json:"qa_run_count"`
}
