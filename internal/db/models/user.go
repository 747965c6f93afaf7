// Package models - user.go defines the minimal User model the pipeline needs:
// identity, role for approval authorization, and account status for the user
// approval target. Account provisioning and login live outside this service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole controls approval authorization.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// UserStatus is the account status flipped by the user approval target.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User represents an account known to the pipeline.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name" json:"name"`
	Role         UserRole   `db:"role" json:"role"`
	Status       UserStatus `db:"status" json:"status"`
	APIKeyHash   *string    `db:"api_key_hash" json:"-"`
	APIKeyPrefix *string    `db:"api_key_prefix" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user holds the administrative role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
