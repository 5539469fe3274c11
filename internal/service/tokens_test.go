package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository/memory"
	"github.com/MasCreaThor/testflow-auth/internal/token"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestTokens_RefreshRedeemOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sub := newUUID()

	v, err := e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)
	require.Len(t, v, 96)

	got, err := e.tokens.RedeemRefreshToken(ctx, v)
	require.NoError(t, err)
	require.Equal(t, sub, got)

	_, err = e.tokens.RedeemRefreshToken(ctx, v)
	require.ErrorIs(t, err, errs.ErrTokenAlreadyUsed)
}

func TestTokens_IssuingRefreshInvalidatesPrevious(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sub := newUUID()
	other := newUUID()

	first, err := e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)
	foreign, err := e.tokens.IssueRefreshToken(ctx, other)
	require.NoError(t, err)
	second, err := e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)

	_, err = e.tokens.RedeemRefreshToken(ctx, first)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	got, err := e.tokens.RedeemRefreshToken(ctx, second)
	require.NoError(t, err)
	require.Equal(t, sub, got)

	got, err = e.tokens.RedeemRefreshToken(ctx, foreign)
	require.NoError(t, err, "other subjects are untouched")
	require.Equal(t, other, got)
}

func TestTokens_ConcurrentRedeemHasOneWinner(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	v, err := e.tokens.IssueRefreshToken(ctx, newUUID())
	require.NoError(t, err)

	const n = 16
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.tokens.RedeemRefreshToken(ctx, v)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, errs.ErrTokenAlreadyUsed)
	}
	require.Equal(t, 1, wins)
}

func TestTokens_ResetLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sub := newUUID()

	old, err := e.tokens.IssueResetToken(ctx, sub)
	require.NoError(t, err)
	fresh, err := e.tokens.IssueResetToken(ctx, sub)
	require.NoError(t, err)

	_, err = e.tokens.RedeemResetToken(ctx, old)
	require.ErrorIs(t, err, errs.ErrTokenInvalid, "prior unused reset tokens are dropped")

	_, err = e.tokens.RedeemRefreshToken(ctx, fresh)
	require.ErrorIs(t, err, errs.ErrTokenInvalid, "kind must match")

	e.clock.Advance(DefaultResetTTL)
	_, err = e.tokens.RedeemResetToken(ctx, fresh)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestTokens_RedeemUnknownOrEmpty(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.tokens.RedeemRefreshToken(ctx, "")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
	_, err = e.tokens.RedeemRefreshToken(ctx, "not-issued")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = e.tokens.IssueRefreshToken(ctx, uuid.Nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestTokens_RevokeAndPurge(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sub := newUUID()

	v, err := e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)
	require.NoError(t, e.tokens.Revoke(ctx, v))
	require.NoError(t, e.tokens.Revoke(ctx, v), "revoking twice is a no-op")
	_, err = e.tokens.RedeemRefreshToken(ctx, v)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	reset, err := e.tokens.IssueResetToken(ctx, sub)
	require.NoError(t, err)
	require.ErrorIs(t, e.tokens.Revoke(ctx, reset), errs.ErrTokenInvalid)

	_, err = e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)
	n, err := e.tokens.RevokeSubject(ctx, sub, model.TokenRefresh)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, err = e.tokens.RevokeSubject(ctx, sub, model.TokenKind("bogus"))
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	e.clock.Advance(2 * time.Hour)
	n, err = e.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "expired tokens are retained")

	e.clock.Advance(DefaultPurgeRetention)
	n, err = e.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 0, e.tokStore.Len())
}

func TestTokens_ExpiredStaysExpiredAcrossPurge(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sub := newUUID()

	reset, err := e.tokens.IssueResetToken(ctx, sub)
	require.NoError(t, err)
	refresh, err := e.tokens.IssueRefreshToken(ctx, sub)
	require.NoError(t, err)

	e.clock.Advance(DefaultRefreshTTL + time.Minute)
	_, err = e.tokens.PurgeExpired(ctx)
	require.NoError(t, err)

	_, err = e.tokens.RedeemResetToken(ctx, reset)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
	_, err = e.tokens.RedeemRefreshToken(ctx, refresh)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestTokens_ZeroRetentionPurgesOnExpiry(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	signer, err := token.NewHS256([]byte("k"), token.WithClock(e.clock.Now))
	require.NoError(t, err)
	svc, err := NewTokenService(e.tokStore, signer, WithClock(e.clock.Now), WithPurgeRetention(0))
	require.NoError(t, err)

	_, err = svc.IssueResetToken(ctx, newUUID())
	require.NoError(t, err)
	e.clock.Advance(DefaultResetTTL)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

// gatedTokens holds every Create until all expected callers have inserted.
type gatedTokens struct {
	*memory.Tokens
	inserted sync.WaitGroup
}

func (g *gatedTokens) Create(ctx context.Context, t *model.Token) error {
	err := g.Tokens.Create(ctx, t)
	g.inserted.Done()
	g.inserted.Wait()
	return err
}

func TestTokens_OverlappingIssuesLeaveOneLiveToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	store := &gatedTokens{Tokens: memory.NewTokens()}
	store.inserted.Add(2)
	signer, err := token.NewHS256([]byte("k"), token.WithClock(e.clock.Now))
	require.NoError(t, err)
	svc, err := NewTokenService(store, signer, WithClock(e.clock.Now))
	require.NoError(t, err)

	sub := newUUID()
	var (
		wg     sync.WaitGroup
		values [2]string
		errsIn [2]error
	)
	for i := range values {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errsIn[i] = svc.IssueRefreshToken(ctx, sub)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errsIn[0])
	require.NoError(t, errsIn[1])
	require.Equal(t, 1, store.Len())

	live := 0
	for _, v := range values {
		if _, err := svc.RedeemRefreshToken(ctx, v); err == nil {
			live++
		}
	}
	require.Equal(t, 1, live)
}

type failingRotation struct {
	*memory.Tokens
}

func (failingRotation) DeleteOlder(context.Context, *model.Token) (int64, error) {
	return 0, errors.New("store down")
}

func TestTokens_FailedRotationDropsNewToken(t *testing.T) {
	t.Parallel()
	store := failingRotation{Tokens: memory.NewTokens()}
	signer, err := token.NewHS256([]byte("k"))
	require.NoError(t, err)
	svc, err := NewTokenService(store, signer)
	require.NoError(t, err)

	v, err := svc.IssueRefreshToken(context.Background(), newUUID())
	require.Error(t, err)
	require.Empty(t, v)
	require.Equal(t, 0, store.Len())
}

func TestTokens_AccessProofRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	sub := newUUID()

	raw, exp, err := e.tokens.IssueAccessProof(sub, map[string]any{"email": "a@x.io"})
	require.NoError(t, err)
	require.Equal(t, e.clock.Now().Add(24*time.Hour), exp)

	claims, err := e.tokens.VerifyAccessProof(raw)
	require.NoError(t, err)
	require.Equal(t, sub, claims.SubjectID)

	e.clock.Advance(25 * time.Hour)
	_, err = e.tokens.VerifyAccessProof(raw)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}
