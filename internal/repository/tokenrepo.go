package repository

import (
	"context"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository persists refresh and reset tokens.
type TokenRepository interface {
	// Create inserts a token record.
	Create(ctx context.Context, t *model.Token) error
	// GetByValue loads a token by its opaque value.
	GetByValue(ctx context.Context, value string) (*model.Token, error)
	// MarkUsed flips used=false to used=true atomically. It reports false when
	// the token was already used (or is gone), so only one caller can win.
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteBySubject removes tokens of kind for subject. With unusedOnly set,
	// used tokens are left in place.
	DeleteBySubject(ctx context.Context, subjectID uuid.UUID, kind model.TokenKind, unusedOnly bool) (int64, error)
	// DeleteOlder removes the tokens of t's subject and kind that sort before t
	// by (created_at, id). Tokens issued concurrently after t are kept.
	DeleteOlder(ctx context.Context, t *model.Token) (int64, error)
	// DeleteByValue removes a single token.
	DeleteByValue(ctx context.Context, value string) error
	// DeleteExpired removes tokens whose expiry is at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
