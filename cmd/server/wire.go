package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgcrypto "github.com/MasCreaThor/testflow-auth/internal/crypto"
	"github.com/MasCreaThor/testflow-auth/internal/limiter"
	"github.com/MasCreaThor/testflow-auth/internal/metrics"
	"github.com/MasCreaThor/testflow-auth/internal/migrate"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/MasCreaThor/testflow-auth/internal/repository/memory"
	"github.com/MasCreaThor/testflow-auth/internal/repository/postgres"
	"github.com/MasCreaThor/testflow-auth/internal/service"
)

// stores bundles one backend: PostgreSQL when a DSN is configured, otherwise
// process-local maps.
type stores struct {
	creds       repository.CredentialRepository
	tokens      repository.TokenRepository
	perms       repository.PermissionRepository
	roles       repository.RoleRepository
	assignments repository.AssignmentRepository
	lim         limiter.Limiter

	sweep func() int // drops idle limiter state; nil when the database does it
	close func()
}

func openStores(ctx context.Context, cfg config, log *zap.Logger) (*stores, error) {
	if cfg.DSN == "" {
		return memoryStores(cfg), nil
	}

	ver, err := migrate.Up(ctx, cfg.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	log.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &stores{
		creds:       postgres.NewCredentialRepo(db),
		tokens:      postgres.NewTokenRepo(db),
		perms:       postgres.NewPermissionRepo(db),
		roles:       postgres.NewRoleRepo(db),
		assignments: postgres.NewAssignmentRepo(db),
		lim:         limiter.NewPG(db.Pool, cfg.Login),
		close:       db.Close,
	}, nil
}

func memoryStores(cfg config) *stores {
	rbac := memory.NewRBAC()
	lim := limiter.NewMemory(cfg.Login)
	return &stores{
		creds:       memory.NewCredentials(),
		tokens:      memory.NewTokens(),
		perms:       rbac.Permissions(),
		roles:       rbac.Roles(),
		assignments: rbac.Assignments(),
		lim:         lim,
		sweep:       lim.Sweep,
		close:       func() {},
	}
}

type app struct {
	auth     *service.AuthServiceImpl
	tokens   *service.TokenService
	registry *service.RegistryService
	authz    *service.AuthzService

	seeder     service.Seeder
	seedConfig service.SeedConfig
	sweep      func() int
}

func buildApp(cfg config, st *stores, m *metrics.Metrics, log *zap.Logger) (*app, error) {
	signer, err := cfg.signer()
	if err != nil {
		return nil, err
	}
	tokens, err := service.NewTokenService(st.tokens, signer,
		service.WithRefreshTTL(cfg.RefreshTTL),
		service.WithResetTTL(cfg.ResetTTL),
		service.WithPurgeRetention(cfg.PurgeRetention),
	)
	if err != nil {
		return nil, err
	}
	registry, err := service.NewRegistryService(st.perms, st.roles)
	if err != nil {
		return nil, err
	}
	authz, err := service.NewAuthzService(st.roles, st.assignments, service.WithAuthzMetrics(m))
	if err != nil {
		return nil, err
	}
	auth, err := service.NewAuthService(st.creds, tokens, authz,
		service.WithHasher(pkgcrypto.Hasher{Cost: cfg.BcryptCost}),
		service.WithLimiter(st.lim),
		service.WithMetrics(m),
		service.WithLogger(log.Named("auth")),
	)
	if err != nil {
		return nil, err
	}
	return &app{
		auth:     auth,
		tokens:   tokens,
		registry: registry,
		authz:    authz,
		seeder: service.Seeder{
			Registry: registry,
			Authz:    authz,
			Auth:     auth,
			Creds:    st.creds,
			Log:      log.Named("seed"),
		},
		seedConfig: service.SeedConfig{AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPassword},
		sweep:      st.sweep,
	}, nil
}

// purgeLoop removes expired tokens every interval until ctx is done.
func purgeLoop(ctx context.Context, interval time.Duration, a *app, m *metrics.Metrics, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purgeOnce(ctx, a, m, log)
		}
	}
}

func purgeOnce(ctx context.Context, a *app, m *metrics.Metrics, log *zap.Logger) {
	n, err := a.tokens.PurgeExpired(ctx)
	if err != nil {
		log.Warn("purge expired tokens", zap.Error(err))
		return
	}
	m.RecordPurged(n)
	swept := 0
	if a.sweep != nil {
		swept = a.sweep()
	}
	if n > 0 || swept > 0 {
		log.Info("purged", zap.Int64("tokens", n), zap.Int("limiter_entries", swept))
	}
}
