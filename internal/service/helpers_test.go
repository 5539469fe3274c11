package service

import (
	"context"
	"sync"
	"testing"
	"time"

	pkgcrypto "github.com/MasCreaThor/testflow-auth/internal/crypto"
	"github.com/MasCreaThor/testflow-auth/internal/limiter"
	"github.com/MasCreaThor/testflow-auth/internal/repository/memory"
	"github.com/MasCreaThor/testflow-auth/internal/token"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeLimiter struct {
	allowOK     bool
	allowErr    error
	failBlocked bool
	failureErr  error
	successErr  error

	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failureErr
}

type env struct {
	clock    *testClock
	creds    *memory.Credentials
	tokStore *memory.Tokens
	rbac     *memory.RBAC
	tokens   *TokenService
	registry *RegistryService
	authz    *AuthzService
	auth     *AuthServiceImpl
	lim      *fakeLimiter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		clock:    &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		creds:    memory.NewCredentials(),
		tokStore: memory.NewTokens(),
		rbac:     memory.NewRBAC(),
		lim:      &fakeLimiter{allowOK: true},
	}
	e.rbac.SetClock(e.clock.Now)

	signer, err := token.NewHS256([]byte("test-key"), token.WithClock(e.clock.Now))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if e.tokens, err = NewTokenService(e.tokStore, signer, WithClock(e.clock.Now)); err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if e.registry, err = NewRegistryService(e.rbac.Permissions(), e.rbac.Roles()); err != nil {
		t.Fatalf("registry: %v", err)
	}
	if e.authz, err = NewAuthzService(e.rbac.Roles(), e.rbac.Assignments(), WithAuthzClock(e.clock.Now)); err != nil {
		t.Fatalf("authz: %v", err)
	}
	e.auth, err = NewAuthService(e.creds, e.tokens, e.authz,
		WithHasher(pkgcrypto.Hasher{Cost: bcrypt.MinCost}),
		WithLimiter(e.lim),
	)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	return e
}

func newUUID() uuid.UUID { return uuid.Must(uuid.NewV4()) }
