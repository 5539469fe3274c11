// Package convert maps domain models to wire messages and back.
package convert

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/MasCreaThor/testflow-auth/internal/api"
	"github.com/MasCreaThor/testflow-auth/internal/model"
)

// ToAPITokens converts an issued token pair.
func ToAPITokens(t model.Tokens) *api.TokenResponse {
	return &api.TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.UTC(),
		UserID:       t.SubjectID.String(),
	}
}

// ToAPIPermission converts a permission.
func ToAPIPermission(p model.Permission) api.Permission {
	return api.Permission{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Group:       p.Group,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

// ToAPIPermissions converts a slice, never returning nil.
func ToAPIPermissions(in []model.Permission) []api.Permission {
	out := make([]api.Permission, 0, len(in))
	for _, p := range in {
		out = append(out, ToAPIPermission(p))
	}
	return out
}

// ToAPIRole converts a role.
func ToAPIRole(r model.Role) api.Role {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return api.Role{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		Permissions: append([]string(nil), perms...),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// ToAPIRoles converts a slice, never returning nil.
func ToAPIRoles(in []model.Role) []api.Role {
	out := make([]api.Role, 0, len(in))
	for _, r := range in {
		out = append(out, ToAPIRole(r))
	}
	return out
}

// ToAPIAssignment converts a role assignment.
func ToAPIAssignment(a model.UserRoleAssignment) api.Assignment {
	out := api.Assignment{
		ID:        a.ID.String(),
		UserID:    a.UserID.String(),
		RoleID:    a.RoleID.String(),
		State:     string(a.State),
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
	if a.ExpiresAt != nil {
		exp := a.ExpiresAt.UTC()
		out.ExpiresAt = &exp
	}
	if a.GrantedBy != nil {
		out.GrantedBy = a.GrantedBy.String()
	}
	return out
}

// ParseID parses a required UUID field; name is used in the error.
func ParseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
