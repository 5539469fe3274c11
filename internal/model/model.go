// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// AdminRoleName is the reserved role whose effective holders bypass permission checks.
const AdminRoleName = "admin"

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
	SubjectID    uuid.UUID
}

// Credential is the identity-store view this core reads and writes.
type Credential struct {
	UserID    uuid.UUID // PK
	Email     string    // unique, lower-cased
	PwdHash   string    // bcrypt, self-describing
	CreatedAt time.Time
}

// TokenKind distinguishes persisted single-use tokens.
type TokenKind string

const (
	TokenRefresh TokenKind = "refresh"
	TokenReset   TokenKind = "reset"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool { return k == TokenRefresh || k == TokenReset }

// Token is a persisted refresh or reset token. Access proofs are never stored.
type Token struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	Value     string    // opaque random string handed to the client
	Kind      TokenKind
	ExpiresAt time.Time // immutable
	Used      bool      // never flips back to false
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Permission is a named capability, conventionally "resource:action".
type Permission struct {
	ID          uuid.UUID
	Name        string // unique, immutable
	Description string
	Group       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role carries a denormalized set of permission names validated at write time.
type Role struct {
	ID          uuid.UUID
	Name        string // unique
	Description string
	Permissions []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission reports whether name is in the role's permission set.
func (r *Role) HasPermission(name string) bool {
	for _, p := range r.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// AssignmentState is the soft lifecycle of a role assignment.
type AssignmentState string

const (
	AssignmentActive  AssignmentState = "active"
	AssignmentRevoked AssignmentState = "revoked"
)

// UserRoleAssignment binds a user to a role; unique on (UserID, RoleID).
type UserRoleAssignment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	RoleID    uuid.UUID
	State     AssignmentState
	ExpiresAt *time.Time // nil = never expires
	GrantedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Effective reports whether the assignment is active and unexpired at now.
func (a *UserRoleAssignment) Effective(now time.Time) bool {
	if a.State != AssignmentActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}
