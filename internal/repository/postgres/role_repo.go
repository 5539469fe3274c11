package postgres

import (
	"context"
	"fmt"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// RoleRepo implements RoleRepository using PostgreSQL.
type RoleRepo struct{ db *DB }

// NewRoleRepo constructs a role repository.
func NewRoleRepo(db *DB) *RoleRepo { return &RoleRepo{db: db} }

const roleCols = `id, name, description, permissions, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (*model.Role, error) {
	var r model.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Permissions, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	return &r, nil
}

// checkPermissions locks the referenced permission rows for the rest of tx
// and reports every name that does not exist.
func checkPermissions(ctx context.Context, tx pgx.Tx, names []string) error {
	if len(names) == 0 {
		return nil
	}
	const q = `SELECT name FROM permissions WHERE name = ANY($1) FOR SHARE`
	rows, err := tx.Query(ctx, q, names)
	if err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(names))
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return err
		}
		found[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, n := range names {
		if _, ok := found[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &errs.MissingReferencesError{Names: missing}
	}
	return nil
}

// Create validates permission names and inserts the role in one transaction.
func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	const ins = `
INSERT INTO roles (id, name, description, permissions, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := checkPermissions(ctx, tx, role.Permissions); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, ins, role.ID, role.Name, role.Description, role.Permissions, role.IsActive).
			Scan(&role.CreatedAt, &role.UpdatedAt)
		if isUniqueViolation(err) {
			return errs.ErrConflict
		}
		return err
	})
}

// GetByID selects a role by ID.
func (r *RoleRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	role, err := scanRole(r.db.Pool.QueryRow(ctx, `SELECT `+roleCols+` FROM roles WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return role, nil
}

// GetByName selects a role by its unique name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	role, err := scanRole(r.db.Pool.QueryRow(ctx, `SELECT `+roleCols+` FROM roles WHERE name=$1`, name))
	if err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return role, nil
}

// GetMany returns the existing roles among ids.
func (r *RoleRepo) GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	return r.list(ctx, `SELECT `+roleCols+` FROM roles WHERE id = ANY($1::uuid[]) ORDER BY name`, strIDs)
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	return r.list(ctx, `SELECT `+roleCols+` FROM roles ORDER BY name`)
}

func (r *RoleRepo) list(ctx context.Context, q string, args ...any) ([]model.Role, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

// Update validates permission names and persists all mutable fields.
func (r *RoleRepo) Update(ctx context.Context, role *model.Role) error {
	const upd = `
UPDATE roles
SET name = $2, description = $3, permissions = $4, is_active = $5, updated_at = now()
WHERE id = $1
RETURNING updated_at`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := checkPermissions(ctx, tx, role.Permissions); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, upd, role.ID, role.Name, role.Description, role.Permissions, role.IsActive).
			Scan(&role.UpdatedAt)
		if isUniqueViolation(err) {
			return errs.ErrConflict
		}
		return notFound(err, errs.ErrNotFound)
	})
}

// AddPermissions appends validated names under a row lock.
func (r *RoleRepo) AddPermissions(ctx context.Context, id uuid.UUID, names []string) (out *model.Role, err error) {
	const sel = `SELECT ` + roleCols + ` FROM roles WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE roles SET permissions = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		role, err := scanRole(tx.QueryRow(ctx, sel, id))
		if err != nil {
			return notFound(err, errs.ErrNotFound)
		}
		if err := checkPermissions(ctx, tx, names); err != nil {
			return err
		}
		merged := role.Permissions
		for _, n := range names {
			if !role.HasPermission(n) {
				merged = append(merged, n)
			}
		}
		if len(merged) == len(role.Permissions) {
			out = role
			return nil
		}
		role.Permissions = merged
		if err := tx.QueryRow(ctx, upd, id, merged).Scan(&role.UpdatedAt); err != nil {
			return err
		}
		out = role
		return nil
	})
	return out, err
}

// RemovePermissions drops names in a single statement; absent names are ignored.
func (r *RoleRepo) RemovePermissions(ctx context.Context, id uuid.UUID, names []string) (*model.Role, error) {
	const q = `
UPDATE roles
SET permissions = ARRAY(SELECT p FROM unnest(permissions) AS p WHERE NOT (p = ANY($2))),
    updated_at = now()
WHERE id = $1
RETURNING ` + roleCols
	role, err := scanRole(r.db.Pool.QueryRow(ctx, q, id, names))
	if err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return role, nil
}

// Delete hard-deletes a role. Assignments referencing it are left in place.
func (r *RoleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
