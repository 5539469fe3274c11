package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"go.uber.org/zap"
)

// BuiltinPermission describes a permission the service itself checks.
type BuiltinPermission struct {
	Name        string
	Description string
	Group       string
}

// BuiltinPermissions guard the administrative RPCs.
var BuiltinPermissions = []BuiltinPermission{
	{Name: "users:read", Description: "Read users", Group: "users"},
	{Name: "users:write", Description: "Manage users", Group: "users"},
	{Name: "roles:read", Description: "Read roles", Group: "roles"},
	{Name: "roles:write", Description: "Manage roles", Group: "roles"},
	{Name: "permissions:read", Description: "Read permissions", Group: "permissions"},
	{Name: "permissions:write", Description: "Manage permissions", Group: "permissions"},
	{Name: "assignments:write", Description: "Grant and revoke roles", Group: "assignments"},
}

// SeedConfig names an optional bootstrap administrator.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Seeder makes the builtin catalog, the admin role and an optional first
// administrator exist. Running it again changes nothing.
type Seeder struct {
	Registry *RegistryService
	Authz    *AuthzService
	Auth     AuthService
	Creds    repository.CredentialRepository
	Log      *zap.Logger
}

// Run performs the seed.
func (s Seeder) Run(ctx context.Context, cfg SeedConfig) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	names := make([]string, 0, len(BuiltinPermissions))
	for _, bp := range BuiltinPermissions {
		names = append(names, bp.Name)
		_, err := s.Registry.CreatePermission(ctx, bp.Name, bp.Description, bp.Group)
		switch {
		case err == nil:
			log.Info("permission seeded", zap.String("name", bp.Name))
		case errors.Is(err, errs.ErrConflict):
		default:
			return fmt.Errorf("seed permission %s: %w", bp.Name, err)
		}
	}

	admin, err := s.Registry.CreateRole(ctx, model.AdminRoleName, "Full access", names)
	if errors.Is(err, errs.ErrConflict) {
		admin, err = s.Registry.GetRoleByName(ctx, model.AdminRoleName)
	} else if err == nil {
		log.Info("admin role seeded", zap.String("role_id", admin.ID.String()))
	}
	if err != nil {
		return fmt.Errorf("seed admin role: %w", err)
	}

	if cfg.AdminEmail == "" {
		return nil
	}
	uid, err := s.Auth.Register(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if errors.Is(err, errs.ErrConflict) {
		cred, gerr := s.Creds.GetByEmail(ctx, cfg.AdminEmail)
		if gerr != nil {
			return fmt.Errorf("load bootstrap admin: %w", gerr)
		}
		uid, err = cred.UserID, nil
	}
	if err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}
	if _, err := s.Authz.AssignRole(ctx, uid, admin.ID, nil, nil); err != nil {
		return fmt.Errorf("grant admin role: %w", err)
	}
	log.Info("bootstrap admin ready", zap.String("user_id", uid.String()))
	return nil
}
