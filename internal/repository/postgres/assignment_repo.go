package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AssignmentRepo implements AssignmentRepository using PostgreSQL.
type AssignmentRepo struct{ db *DB }

// NewAssignmentRepo constructs an assignment repository.
func NewAssignmentRepo(db *DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

const assignmentCols = `id, user_id, role_id, state, expires_at, granted_by, created_at, updated_at`

func scanAssignment(row pgx.Row) (*model.UserRoleAssignment, error) {
	var (
		a     model.UserRoleAssignment
		state string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &state, &a.ExpiresAt, &a.GrantedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.State = model.AssignmentState(state)
	return &a, nil
}

// Upsert inserts the pair or reactivates the existing row, replacing expiry and grantor.
func (r *AssignmentRepo) Upsert(ctx context.Context, a *model.UserRoleAssignment) (*model.UserRoleAssignment, error) {
	const q = `
INSERT INTO user_role_assignments (id, user_id, role_id, state, expires_at, granted_by)
VALUES ($1, $2, $3, 'active', $4, $5)
ON CONFLICT (user_id, role_id) DO UPDATE
SET state = 'active',
    expires_at = EXCLUDED.expires_at,
    granted_by = EXCLUDED.granted_by,
    updated_at = now()
RETURNING ` + assignmentCols
	out, err := scanAssignment(r.db.Pool.QueryRow(ctx, q, a.ID, a.UserID, a.RoleID, a.ExpiresAt, a.GrantedBy))
	if err != nil {
		return nil, fmt.Errorf("upsert assignment: %w", err)
	}
	return out, nil
}

// SetState changes the state of the (user, role) pair.
func (r *AssignmentRepo) SetState(ctx context.Context, userID, roleID uuid.UUID, state model.AssignmentState) error {
	const q = `
UPDATE user_role_assignments
SET state = $3, updated_at = now()
WHERE user_id = $1 AND role_id = $2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, roleID, string(state))
	if err != nil {
		return fmt.Errorf("set assignment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes an assignment row.
func (r *AssignmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM user_role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByUser returns every assignment of userID, oldest first.
func (r *AssignmentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentCols+` FROM user_role_assignments WHERE user_id = $1 ORDER BY created_at`, userID)
}

// ListEffective filters out revoked and expired assignments in SQL.
func (r *AssignmentRepo) ListEffective(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.UserRoleAssignment, error) {
	const q = `
SELECT ` + assignmentCols + `
FROM user_role_assignments
WHERE user_id = $1 AND state = 'active' AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at`
	return r.list(ctx, q, userID, now)
}

func (r *AssignmentRepo) list(ctx context.Context, q string, args ...any) ([]model.UserRoleAssignment, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []model.UserRoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
