package repository

import (
	"context"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PermissionRepository manages the permission catalog.
type PermissionRepository interface {
	// Create inserts a permission; duplicate names yield errs.ErrConflict.
	Create(ctx context.Context, p *model.Permission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	// List returns permissions ordered by name, optionally filtered by group.
	List(ctx context.Context, group string) ([]model.Permission, error)
	// Update persists description, group and is_active.
	Update(ctx context.Context, p *model.Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoleRepository manages roles. Write methods validate permission names inside
// the same transaction as the write and fail with *errs.MissingReferencesError.
type RoleRepository interface {
	// Create inserts a role after checking every permission name exists.
	Create(ctx context.Context, r *model.Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// GetMany returns the roles that still exist among ids; missing ids are skipped.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	// Update persists name, description, permissions and is_active.
	Update(ctx context.Context, r *model.Role) error
	// AddPermissions appends names not yet present after validating them.
	AddPermissions(ctx context.Context, id uuid.UUID, names []string) (*model.Role, error)
	// RemovePermissions drops names; absent names are ignored.
	RemovePermissions(ctx context.Context, id uuid.UUID, names []string) (*model.Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AssignmentRepository manages user-role assignments.
type AssignmentRepository interface {
	// Upsert inserts or reactivates the (user, role) pair in one atomic statement.
	Upsert(ctx context.Context, a *model.UserRoleAssignment) (*model.UserRoleAssignment, error)
	// SetState flips the lifecycle state of the (user, role) pair.
	SetState(ctx context.Context, userID, roleID uuid.UUID, state model.AssignmentState) error
	// Delete hard-deletes an assignment by ID.
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByUser returns all assignments of a user regardless of state.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error)
	// ListEffective returns active assignments not expired at now.
	ListEffective(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.UserRoleAssignment, error)
}
