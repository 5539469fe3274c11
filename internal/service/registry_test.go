package service

import (
	"context"
	"errors"
	"testing"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreatePermission_Validation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.registry.CreatePermission(ctx, "  docs:read ", " Read docs ", "docs")
	require.NoError(t, err)
	require.Equal(t, "docs:read", p.Name)
	require.Equal(t, "Read docs", p.Description)
	require.True(t, p.IsActive)

	_, err = e.registry.CreatePermission(ctx, "docs:read", "", "")
	require.ErrorIs(t, err, errs.ErrConflict)

	for _, bad := range []string{"", "docs", "Docs:Read", "docs:", ":read", "a:b:c"} {
		_, err = e.registry.CreatePermission(ctx, bad, "", "")
		require.ErrorIs(t, err, errs.ErrInvalidInput, bad)
	}

	_, err = e.registry.CreatePermission(ctx, "reports.v2:*", "", "")
	require.NoError(t, err)
}

func TestRegistry_CreateRole_AllOrNothing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.registry.CreatePermission(ctx, "docs:read", "", "docs")
	require.NoError(t, err)

	_, err = e.registry.CreateRole(ctx, "editor", "", []string{"docs:read", "docs:write", "users:read"})
	require.ErrorIs(t, err, errs.ErrNotFoundReference)
	var missing *errs.MissingReferencesError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{"docs:write", "users:read"}, missing.Names)

	_, err = e.registry.GetRoleByName(ctx, "editor")
	require.ErrorIs(t, err, errs.ErrNotFound)

	r, err := e.registry.CreateRole(ctx, " editor ", "", []string{"docs:read", " docs:read", ""})
	require.NoError(t, err)
	require.Equal(t, "editor", r.Name)
	require.Equal(t, []string{"docs:read"}, r.Permissions)

	_, err = e.registry.CreateRole(ctx, "editor", "", nil)
	require.ErrorIs(t, err, errs.ErrConflict)
	_, err = e.registry.CreateRole(ctx, "  ", "", nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestRegistry_RolePermissionEdits(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	for _, n := range []string{"docs:read", "docs:write"} {
		_, err := e.registry.CreatePermission(ctx, n, "", "docs")
		require.NoError(t, err)
	}
	r, err := e.registry.CreateRole(ctx, "editor", "", []string{"docs:read"})
	require.NoError(t, err)

	r, err = e.registry.AddPermissionToRole(ctx, r.ID, "docs:write", "docs:read")
	require.NoError(t, err)
	require.Equal(t, []string{"docs:read", "docs:write"}, r.Permissions)

	_, err = e.registry.AddPermissionToRole(ctx, r.ID, "docs:delete")
	require.ErrorIs(t, err, errs.ErrNotFoundReference)

	r, err = e.registry.RemovePermissionFromRole(ctx, r.ID, "docs:write", "never:had")
	require.NoError(t, err)
	require.Equal(t, []string{"docs:read"}, r.Permissions)

	_, err = e.registry.AddPermissionToRole(ctx, newUUID(), "docs:read")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRegistry_UpdateRoleAndPermission(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.registry.CreatePermission(ctx, "docs:read", "", "docs")
	require.NoError(t, err)
	a, err := e.registry.CreateRole(ctx, "a", "", nil)
	require.NoError(t, err)
	_, err = e.registry.CreateRole(ctx, "b", "", nil)
	require.NoError(t, err)

	taken := "b"
	_, err = e.registry.UpdateRole(ctx, a.ID, RoleUpdate{Name: &taken})
	require.ErrorIs(t, err, errs.ErrConflict)

	_, err = e.registry.UpdateRole(ctx, a.ID, RoleUpdate{Permissions: []string{"ghost:x"}})
	require.ErrorIs(t, err, errs.ErrNotFoundReference)

	off := false
	renamed := "reader"
	a, err = e.registry.UpdateRole(ctx, a.ID, RoleUpdate{Name: &renamed, Permissions: []string{"docs:read"}, IsActive: &off})
	require.NoError(t, err)
	require.Equal(t, "reader", a.Name)
	require.False(t, a.IsActive)

	got, err := e.registry.GetRoleByName(ctx, "reader")
	require.NoError(t, err)
	require.Equal(t, []string{"docs:read"}, got.Permissions)

	grp := "documents"
	p, err = e.registry.UpdatePermission(ctx, p.ID, PermissionUpdate{Group: &grp, IsActive: &off})
	require.NoError(t, err)
	require.Equal(t, "documents", p.Group)
	list, err := e.registry.ListPermissions(ctx, "documents")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, e.registry.DeletePermission(ctx, p.ID))
	got, err = e.registry.GetRole(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"docs:read"}, got.Permissions, "no cascade into roles")

	require.NoError(t, e.registry.DeleteRole(ctx, a.ID))
	require.ErrorIs(t, e.registry.DeleteRole(ctx, a.ID), errs.ErrNotFound)
	roles, err := e.registry.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}
