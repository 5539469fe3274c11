package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/MasCreaThor/testflow-auth/internal/crypto"
	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/MasCreaThor/testflow-auth/internal/token"
	"github.com/gofrs/uuid/v5"
)

const (
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
	// DefaultPurgeRetention keeps expired rows around long enough that a late
	// redemption still reports ErrTokenExpired rather than ErrTokenInvalid.
	DefaultPurgeRetention = DefaultRefreshTTL
)

// TokenService owns the lifecycle of access proofs, refresh tokens and reset tokens.
// Persisted tokens move ISSUED -> USED or ISSUED -> EXPIRED and never come back.
type TokenService struct {
	store      repository.TokenRepository
	signer     *token.Signer
	refreshTTL time.Duration
	resetTTL   time.Duration
	retention  time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithResetTTL overrides the reset token lifetime.
func WithResetTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.resetTTL = d
		}
	}
}

// WithPurgeRetention sets how long expired tokens are kept before PurgeExpired
// removes them. Zero purges on expiry.
func WithPurgeRetention(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// NewTokenService wires the token store and access proof signer.
func NewTokenService(store repository.TokenRepository, signer *token.Signer, opts ...TokenOption) (*TokenService, error) {
	if store == nil || signer == nil {
		return nil, errors.New("token store and signer are required")
	}
	s := &TokenService{
		store:      store,
		signer:     signer,
		refreshTTL: DefaultRefreshTTL,
		resetTTL:   DefaultResetTTL,
		retention:  DefaultPurgeRetention,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessProof signs a short-lived proof for subjectID; claims land under "ext".
func (s *TokenService) IssueAccessProof(subjectID uuid.UUID, claims map[string]any) (string, time.Time, error) {
	return s.signer.Issue(subjectID, claims)
}

// VerifyAccessProof checks an access proof without touching the store.
func (s *TokenService) VerifyAccessProof(raw string) (token.AccessClaims, error) {
	return s.signer.Verify(raw)
}

// IssueRefreshToken persists a new refresh token and then drops the subject's
// older refresh tokens. When two issues overlap, the later one survives.
func (s *TokenService) IssueRefreshToken(ctx context.Context, subjectID uuid.UUID) (string, error) {
	t, err := s.issue(ctx, subjectID, model.TokenRefresh, s.refreshTTL)
	if err != nil {
		return "", err
	}
	if _, err := s.store.DeleteOlder(ctx, t); err != nil {
		if derr := s.store.DeleteByValue(ctx, t.Value); derr != nil && !errors.Is(derr, errs.ErrNotFound) {
			err = errors.Join(err, derr)
		}
		return "", fmt.Errorf("rotate refresh tokens: %w", err)
	}
	return t.Value, nil
}

// RedeemRefreshToken consumes a refresh token and returns its subject.
func (s *TokenService) RedeemRefreshToken(ctx context.Context, value string) (uuid.UUID, error) {
	return s.redeem(ctx, value, model.TokenRefresh)
}

// IssueResetToken drops the subject's unused reset tokens and issues a fresh one.
func (s *TokenService) IssueResetToken(ctx context.Context, subjectID uuid.UUID) (string, error) {
	if subjectID == uuid.Nil {
		return "", fmt.Errorf("%w: empty subject", errs.ErrInvalidInput)
	}
	if _, err := s.store.DeleteBySubject(ctx, subjectID, model.TokenReset, true); err != nil {
		return "", fmt.Errorf("drop reset tokens: %w", err)
	}
	t, err := s.issue(ctx, subjectID, model.TokenReset, s.resetTTL)
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// RedeemResetToken consumes a reset token and returns its subject. No
// replacement is issued.
func (s *TokenService) RedeemResetToken(ctx context.Context, value string) (uuid.UUID, error) {
	return s.redeem(ctx, value, model.TokenReset)
}

// RevokeSubject deletes every token of kind held by subjectID.
func (s *TokenService) RevokeSubject(ctx context.Context, subjectID uuid.UUID, kind model.TokenKind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: token kind %q", errs.ErrInvalidInput, kind)
	}
	n, err := s.store.DeleteBySubject(ctx, subjectID, kind, false)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	return n, nil
}

// Revoke deletes a single refresh token. Unknown values are not an error.
func (s *TokenService) Revoke(ctx context.Context, value string) error {
	t, err := s.store.GetByValue(ctx, value)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if t.Kind != model.TokenRefresh {
		return errs.ErrTokenInvalid
	}
	if err := s.store.DeleteByValue(ctx, value); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// PurgeExpired deletes tokens that expired more than the retention ago.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now().Add(-s.retention))
}

func (s *TokenService) issue(ctx context.Context, subjectID uuid.UUID, kind model.TokenKind, ttl time.Duration) (*model.Token, error) {
	if subjectID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty subject", errs.ErrInvalidInput)
	}
	value, err := pkgcrypto.RandToken()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	// PostgreSQL keeps microseconds; DeleteOlder compares against the stored value.
	now := s.now().UTC().Truncate(time.Microsecond)
	t := &model.Token{
		ID:        id,
		SubjectID: subjectID,
		Value:     value,
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("store %s token: %w", kind, err)
	}
	return t, nil
}

// redeem checks existence, kind, use and expiry in that order, then flips
// used with a compare-and-set. Losing the race reads as already used.
func (s *TokenService) redeem(ctx context.Context, value string, kind model.TokenKind) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, errs.ErrTokenInvalid
	}
	t, err := s.store.GetByValue(ctx, value)
	if errors.Is(err, errs.ErrNotFound) {
		return uuid.Nil, errs.ErrTokenInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load token: %w", err)
	}
	if t.Kind != kind {
		return uuid.Nil, errs.ErrTokenInvalid
	}
	if t.Used {
		return uuid.Nil, errs.ErrTokenAlreadyUsed
	}
	if t.Expired(s.now()) {
		return uuid.Nil, errs.ErrTokenExpired
	}
	won, err := s.store.MarkUsed(ctx, t.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mark token used: %w", err)
	}
	if !won {
		return uuid.Nil, errs.ErrTokenAlreadyUsed
	}
	return t.SubjectID, nil
}
