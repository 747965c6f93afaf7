package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError reports manifest problems back to the submitter verbatim.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation failed: %s", strings.Join(e.Problems, "; "))
}

// DuplicateError is returned when identical content is already registered
// under a non-terminal status.
type DuplicateError struct {
	ExistingID   uuid.UUID
	ExistingSlug string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identical content already registered as %s (%s)", e.ExistingSlug, e.ExistingID)
}

// IngestionError classifies transport and packaging failures so the API layer
// can choose between client and server status codes.
type IngestionError struct {
	Kind string // "too_large", "traversal", "corrupt", "network", "signature"
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed (%s): %v", e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
