package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a token row.
func (r *TokenRepo) Create(ctx context.Context, t *model.Token) error {
	const q = `
INSERT INTO tokens (id, subject_id, value, kind, expires_at, used, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.SubjectID, t.Value, string(t.Kind), t.ExpiresAt, t.Used, t.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByValue selects a token by its opaque value.
func (r *TokenRepo) GetByValue(ctx context.Context, value string) (*model.Token, error) {
	const q = `
SELECT id, subject_id, value, kind, expires_at, used, created_at
FROM tokens WHERE value=$1`
	var (
		t    model.Token
		kind string
	)
	err := r.db.Pool.QueryRow(ctx, q, value).Scan(&t.ID, &t.SubjectID, &t.Value, &kind, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, errs.ErrNotFound)
	}
	t.Kind = model.TokenKind(kind)
	return &t, nil
}

// MarkUsed sets used=true only if the token is currently unused.
func (r *TokenRepo) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
UPDATE tokens
SET used = true
WHERE id = $1 AND used = false`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteBySubject removes a subject's tokens of one kind.
func (r *TokenRepo) DeleteBySubject(
	ctx context.Context, subjectID uuid.UUID, kind model.TokenKind, unusedOnly bool,
) (int64, error) {
	const q = `
DELETE FROM tokens
WHERE subject_id = $1 AND kind = $2 AND (NOT $3 OR used = false)`
	tag, err := r.db.Pool.Exec(ctx, q, subjectID, string(kind), unusedOnly)
	if err != nil {
		return 0, fmt.Errorf("delete subject tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlder removes the subject's tokens of t.Kind ordered before t.
func (r *TokenRepo) DeleteOlder(ctx context.Context, t *model.Token) (int64, error) {
	const q = `
DELETE FROM tokens
WHERE subject_id = $1 AND kind = $2 AND (created_at, id) < ($3, $4)`
	tag, err := r.db.Pool.Exec(ctx, q, t.SubjectID, string(t.Kind), t.CreatedAt, t.ID)
	if err != nil {
		return 0, fmt.Errorf("delete older tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByValue removes a single token.
func (r *TokenRepo) DeleteByValue(ctx context.Context, value string) error {
	const q = `DELETE FROM tokens WHERE value = $1`
	tag, err := r.db.Pool.Exec(ctx, q, value)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired removes tokens that expired at or before cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM tokens WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
