package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CredentialRepo implements CredentialRepository on the users table.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Create inserts a new user credential.
func (r *CredentialRepo) Create(ctx context.Context, c *model.Credential) error {
	const q = `
INSERT INTO users (id, email, pwd_hash)
VALUES ($1, $2, $3)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, c.UserID, strings.ToLower(c.Email), c.PwdHash).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID selects a credential by user ID.
func (r *CredentialRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Credential, error) {
	const q = `
SELECT id, email, pwd_hash, created_at
FROM users WHERE id=$1`
	var c model.Credential
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&c.UserID, &c.Email, &c.PwdHash, &c.CreatedAt); err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return &c, nil
}

// GetByEmail selects a credential by email.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	const q = `
SELECT id, email, pwd_hash, created_at
FROM users WHERE email=$1`
	var c model.Credential
	if err := r.db.Pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(&c.UserID, &c.Email, &c.PwdHash, &c.CreatedAt); err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	return &c, nil
}

// UpdateHash replaces the stored password hash.
func (r *CredentialRepo) UpdateHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `
UPDATE users
SET pwd_hash = $2
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return fmt.Errorf("update hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
