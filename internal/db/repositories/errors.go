package repositories

import "errors"

// Sentinel errors returned by repositories so callers can map database
// outcomes to HTTP statuses without string matching.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateContent indicates a module with the same content hash
	// already exists.
	ErrDuplicateContent = errors.New("module content already registered")

	// ErrDuplicateVersion indicates the module already has a version row
	// with the same version string.
	ErrDuplicateVersion = errors.New("module version already registered")

	// ErrStatusConflict indicates a status transition was attempted from a
	// state that does not permit it.
	ErrStatusConflict = errors.New("module status does not permit this transition")

	// ErrPendingWorkflowExists indicates an open approval workflow already
	// targets the same entity.
	ErrPendingWorkflowExists = errors.New("a pending approval workflow already exists for this target")

	// ErrWorkflowDecided indicates a decision was attempted on a workflow
	// that is no longer pending.
	ErrWorkflowDecided = errors.New("approval workflow has already been decided")
)
