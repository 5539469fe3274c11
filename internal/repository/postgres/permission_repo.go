package postgres

import (
	"context"
	"fmt"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PermissionRepo implements PermissionRepository using PostgreSQL.
type PermissionRepo struct{ db *DB }

// NewPermissionRepo constructs a permission repository.
func NewPermissionRepo(db *DB) *PermissionRepo { return &PermissionRepo{db: db} }

const permissionCols = `id, name, description, grp, is_active, created_at, updated_at`

// Create inserts a permission; the UNIQUE(name) constraint decides conflicts.
func (r *PermissionRepo) Create(ctx context.Context, p *model.Permission) error {
	const q = `
INSERT INTO permissions (id, name, description, grp, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.Name, p.Description, p.Group, p.IsActive).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// GetByID selects a permission by ID.
func (r *PermissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	q := `SELECT ` + permissionCols + ` FROM permissions WHERE id=$1`
	var p model.Permission
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Group, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return &p, nil
}

// List returns permissions ordered by name; an empty group means all.
func (r *PermissionRepo) List(ctx context.Context, group string) ([]model.Permission, error) {
	q := `SELECT ` + permissionCols + ` FROM permissions WHERE ($1 = '' OR grp = $1) ORDER BY name`
	rows, err := r.db.Pool.Query(ctx, q, group)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var out []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Group, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists the mutable fields; the name is immutable.
func (r *PermissionRepo) Update(ctx context.Context, p *model.Permission) error {
	const q = `
UPDATE permissions
SET description = $2, grp = $3, is_active = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at`
	if err := r.db.Pool.QueryRow(ctx, q, p.ID, p.Description, p.Group, p.IsActive).Scan(&p.UpdatedAt); err != nil {
		return notFound(err, errs.ErrNotFound)
	}
	return nil
}

// Delete hard-deletes a permission. Roles keep their denormalized copy of the name.
func (r *PermissionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
