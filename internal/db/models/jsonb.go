// Package models - jsonb.go provides generic JSONB column support so structured
// metadata (tags, compatibility descriptors, findings, payloads) can be stored in
// PostgreSQL jsonb columns and scanned back into typed Go values through the
// standard database/sql Valuer and Scanner interfaces.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB wraps any JSON-serializable value as a jsonb column.
type JSONB[T any] struct {
	Data T
}

// Value implements driver.Valuer.
func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb column: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner. NULL scans to the zero value.
func (j *JSONB[T]) Scan(src interface{}) error {
	if src == nil {
		var zero T
		j.Data = zero
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into jsonb column", src)
	}

	if err := json.Unmarshal(raw, &j.Data); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb column: %w", err)
	}
	return nil
}

// MarshalJSON renders the wrapped value directly, so API responses do not
// expose the wrapper struct.
func (j JSONB[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Data)
}

// UnmarshalJSON accepts the wrapped value directly.
func (j *JSONB[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.Data)
}
