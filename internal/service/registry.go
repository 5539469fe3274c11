package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
)

var permissionName = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_.*-]+$`)

// PermissionUpdate carries optional permission changes. The name is immutable.
type PermissionUpdate struct {
	Description *string
	Group       *string
	IsActive    *bool
}

// RoleUpdate carries optional role changes. A nil Permissions leaves the set
// untouched; an empty non-nil slice clears it.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions []string
	IsActive    *bool
}

// RegistryService maintains the permission catalog and the roles built from it.
type RegistryService struct {
	perms repository.PermissionRepository
	roles repository.RoleRepository
}

// NewRegistryService constructs RegistryService.
func NewRegistryService(perms repository.PermissionRepository, roles repository.RoleRepository) (*RegistryService, error) {
	if perms == nil || roles == nil {
		return nil, errors.New("permission and role stores are required")
	}
	return &RegistryService{perms: perms, roles: roles}, nil
}

// CreatePermission registers a "resource:action" permission.
func (s *RegistryService) CreatePermission(ctx context.Context, name, description, group string) (*model.Permission, error) {
	name = strings.TrimSpace(name)
	if !permissionName.MatchString(name) {
		return nil, fmt.Errorf("%w: permission name %q must look like resource:action", errs.ErrInvalidInput, name)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := &model.Permission{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Group:       strings.TrimSpace(group),
		IsActive:    true,
	}
	if err := s.perms.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RegistryService) GetPermission(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	return s.perms.GetByID(ctx, id)
}

// ListPermissions lists the catalog; an empty group returns everything.
func (s *RegistryService) ListPermissions(ctx context.Context, group string) ([]model.Permission, error) {
	return s.perms.List(ctx, strings.TrimSpace(group))
}

func (s *RegistryService) UpdatePermission(ctx context.Context, id uuid.UUID, upd PermissionUpdate) (*model.Permission, error) {
	p, err := s.perms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Group != nil {
		p.Group = strings.TrimSpace(*upd.Group)
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	if err := s.perms.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePermission removes a catalog entry. Roles that already list the name keep it.
func (s *RegistryService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return s.perms.Delete(ctx, id)
}

// CreateRole creates a role whose permissions must all exist. Either the role
// is stored with every name or nothing is stored.
func (s *RegistryService) CreateRole(ctx context.Context, name, description string, permissions []string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	r := &model.Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: dedupeStrings(permissions),
		IsActive:    true,
	}
	if err := s.roles.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RegistryService) GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return s.roles.GetByID(ctx, id)
}

func (s *RegistryService) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	return s.roles.GetByName(ctx, strings.TrimSpace(name))
}

func (s *RegistryService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.roles.List(ctx)
}

// UpdateRole applies upd; a new permission set is validated like CreateRole.
func (s *RegistryService) UpdateRole(ctx context.Context, id uuid.UUID, upd RoleUpdate) (*model.Role, error) {
	r, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", errs.ErrInvalidInput)
		}
		r.Name = name
	}
	if upd.Description != nil {
		r.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		r.Permissions = dedupeStrings(upd.Permissions)
	}
	if upd.IsActive != nil {
		r.IsActive = *upd.IsActive
	}
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddPermissionToRole appends names; names already present are kept once.
func (s *RegistryService) AddPermissionToRole(ctx context.Context, roleID uuid.UUID, names ...string) (*model.Role, error) {
	names = dedupeStrings(names)
	if len(names) == 0 {
		return s.roles.GetByID(ctx, roleID)
	}
	return s.roles.AddPermissions(ctx, roleID, names)
}

// RemovePermissionFromRole drops names; names the role lacks are ignored.
func (s *RegistryService) RemovePermissionFromRole(ctx context.Context, roleID uuid.UUID, names ...string) (*model.Role, error) {
	names = dedupeStrings(names)
	if len(names) == 0 {
		return s.roles.GetByID(ctx, roleID)
	}
	return s.roles.RemovePermissions(ctx, roleID, names)
}

// DeleteRole removes a role. Assignments pointing at it stay and resolve to nothing.
func (s *RegistryService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.roles.Delete(ctx, id)
}

// dedupeStrings trims, drops empties and keeps first occurrences in order.
func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
