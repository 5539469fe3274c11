// Package service contains the token lifecycle, role registry, permission
// resolver and the authentication facade built on top of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pkgcrypto "github.com/MasCreaThor/testflow-auth/internal/crypto"
	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/limiter"
	"github.com/MasCreaThor/testflow-auth/internal/metrics"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/MasCreaThor/testflow-auth/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinSecretLength is the shortest accepted password.
const MinSecretLength = 8

// AuthService is what transports call into.
type AuthService interface {
	// Register creates a credential and returns the new user ID.
	Register(ctx context.Context, email, secret string) (uuid.UUID, error)
	// Login verifies a credential under rate limiting and issues a token pair.
	Login(ctx context.Context, email, secret, ip string) (model.Tokens, error)
	// Refresh redeems a refresh token and issues a new pair.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// RequestReset issues a reset token for a known email.
	RequestReset(ctx context.Context, email string) (string, uuid.UUID, error)
	// ResetPassword redeems a reset token and replaces the secret.
	ResetPassword(ctx context.Context, resetToken, newSecret string) error
	// ChangePassword replaces the secret after verifying the current one.
	ChangePassword(ctx context.Context, userID uuid.UUID, oldSecret, newSecret string) error
	// Logout deletes a refresh token.
	Logout(ctx context.Context, refreshToken string) error
	// VerifyAccess checks an access proof.
	VerifyAccess(raw string) (token.AccessClaims, error)
	// Authorize reports whether userID holds every permission in required.
	Authorize(ctx context.Context, userID uuid.UUID, required []string) (bool, error)
}

type AuthServiceImpl struct {
	creds   repository.CredentialRepository
	tokens  *TokenService
	authz   *AuthzService
	hasher  pkgcrypto.Hasher
	lim     limiter.Limiter
	metrics *metrics.Metrics
	log     *zap.Logger

	dummyOnce sync.Once
	dummy     string
}

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthOption configures AuthServiceImpl.
type AuthOption func(*AuthServiceImpl)

// WithHasher overrides the bcrypt work factor.
func WithHasher(h pkgcrypto.Hasher) AuthOption {
	return func(s *AuthServiceImpl) { s.hasher = h }
}

// WithLimiter enables login throttling.
func WithLimiter(l limiter.Limiter) AuthOption {
	return func(s *AuthServiceImpl) { s.lim = l }
}

// WithMetrics records login and redemption outcomes.
func WithMetrics(m *metrics.Metrics) AuthOption {
	return func(s *AuthServiceImpl) { s.metrics = m }
}

// WithLogger reports limiter store failures.
func WithLogger(log *zap.Logger) AuthOption {
	return func(s *AuthServiceImpl) { s.log = log }
}

// NewAuthService constructs the facade. Without WithLimiter a permissive
// in-memory limiter with the default policy is used.
func NewAuthService(creds repository.CredentialRepository, tokens *TokenService, authz *AuthzService, opts ...AuthOption) (*AuthServiceImpl, error) {
	if creds == nil || tokens == nil || authz == nil {
		return nil, errors.New("credential store, token service and resolver are required")
	}
	s := &AuthServiceImpl{creds: creds, tokens: tokens, authz: authz, hasher: pkgcrypto.DefaultHasher}
	for _, opt := range opts {
		opt(s)
	}
	if s.lim == nil {
		s.lim = limiter.NewMemory(limiter.DefaultPolicy)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrInvalidInput, MinSecretLength)
	}
	return nil
}

// Register creates a user credential with a bcrypt hash.
func (s *AuthServiceImpl) Register(ctx context.Context, email, secret string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return uuid.Nil, fmt.Errorf("%w: valid email is required", errs.ErrInvalidInput)
	}
	if err := validateSecret(secret); err != nil {
		return uuid.Nil, err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return uuid.Nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.creds.Create(ctx, &model.Credential{UserID: uid, Email: email, PwdHash: hash}); err != nil {
		return uuid.Nil, err
	}
	return uid, nil
}

// Login authenticates with rate limiting by (email, ip). Unknown email and
// wrong secret are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, email, secret, ip string) (model.Tokens, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		s.metrics.RecordLogin("error")
		return model.Tokens{}, err
	}
	if !allowed {
		s.metrics.RecordLogin("rate_limited")
		return model.Tokens{}, errs.ErrRateLimited
	}

	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.metrics.RecordLogin("error")
		return model.Tokens{}, fmt.Errorf("load credential: %w", err)
	}
	var ok bool
	if cred == nil {
		// Burn comparable time so an unknown email is not observable.
		s.hasher.Verify(secret, s.dummyHash())
	} else {
		ok = s.hasher.Verify(secret, cred.PwdHash)
	}
	if !ok {
		blocked, _, ferr := s.lim.Failure(ctx, email, ipHash)
		if ferr != nil {
			// The attempt went uncounted; the caller still sees a plain rejection.
			s.log.Warn("record failed login", zap.Error(ferr))
		}
		if blocked {
			s.metrics.RecordLogin("rate_limited")
			return model.Tokens{}, errs.ErrRateLimited
		}
		s.metrics.RecordLogin("invalid")
		return model.Tokens{}, errs.ErrInvalidCredentials
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("reset login failures", zap.Error(err))
	}
	tokens, err := s.issuePair(ctx, cred)
	if err != nil {
		s.metrics.RecordLogin("error")
		return model.Tokens{}, err
	}
	s.metrics.RecordLogin("ok")
	return tokens, nil
}

func (s *AuthServiceImpl) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummy
}

// Refresh rotates a refresh token. The presented token is spent even if the
// subject no longer exists.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	sub, err := s.tokens.RedeemRefreshToken(ctx, refreshToken)
	s.recordRedeem(model.TokenRefresh, err)
	if err != nil {
		return model.Tokens{}, err
	}
	cred, err := s.creds.GetByID(ctx, sub)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, errs.ErrTokenInvalid
	}
	if err != nil {
		return model.Tokens{}, fmt.Errorf("load credential: %w", err)
	}
	return s.issuePair(ctx, cred)
}

func (s *AuthServiceImpl) issuePair(ctx context.Context, cred *model.Credential) (model.Tokens, error) {
	access, exp, err := s.tokens.IssueAccessProof(cred.UserID, map[string]any{"email": cred.Email})
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(ctx, cred.UserID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, SubjectID: cred.UserID}, nil
}

// RequestReset returns errs.ErrNotFound for unknown emails; transports are
// expected to answer uniformly either way.
func (s *AuthServiceImpl) RequestReset(ctx context.Context, email string) (string, uuid.UUID, error) {
	cred, err := s.creds.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", uuid.Nil, err
	}
	tok, err := s.tokens.IssueResetToken(ctx, cred.UserID)
	if err != nil {
		return "", uuid.Nil, err
	}
	return tok, cred.UserID, nil
}

// ResetPassword validates the new secret before spending the token, then
// revokes every refresh token of the subject.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, resetToken, newSecret string) error {
	if err := validateSecret(newSecret); err != nil {
		return err
	}
	sub, err := s.tokens.RedeemResetToken(ctx, resetToken)
	s.recordRedeem(model.TokenReset, err)
	if err != nil {
		return err
	}
	return s.replaceSecret(ctx, sub, newSecret)
}

// ChangePassword verifies oldSecret and replaces it.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldSecret, newSecret string) error {
	if err := validateSecret(newSecret); err != nil {
		return err
	}
	cred, err := s.creds.GetByID(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if !s.hasher.Verify(oldSecret, cred.PwdHash) {
		return errs.ErrInvalidCredentials
	}
	return s.replaceSecret(ctx, userID, newSecret)
}

func (s *AuthServiceImpl) replaceSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}
	if err := s.creds.UpdateHash(ctx, userID, hash); err != nil {
		return err
	}
	if _, err := s.tokens.RevokeSubject(ctx, userID, model.TokenRefresh); err != nil {
		return err
	}
	return nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *AuthServiceImpl) VerifyAccess(raw string) (token.AccessClaims, error) {
	return s.tokens.VerifyAccessProof(raw)
}

func (s *AuthServiceImpl) Authorize(ctx context.Context, userID uuid.UUID, required []string) (bool, error) {
	return s.authz.HasAllPermissions(ctx, userID, required)
}

func (s *AuthServiceImpl) recordRedeem(kind model.TokenKind, err error) {
	result := "ok"
	switch {
	case errors.Is(err, errs.ErrTokenAlreadyUsed):
		result = "already_used"
	case errors.Is(err, errs.ErrTokenExpired):
		result = "expired"
	case errors.Is(err, errs.ErrTokenInvalid):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	s.metrics.RecordRedeem(string(kind), result)
}
