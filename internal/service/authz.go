package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/metrics"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// MaxPermissionQuery bounds the names accepted by HasAll/HasAny.
const MaxPermissionQuery = 64

// Wildcard is returned by EffectivePermissions for admins.
const Wildcard = "*"

// AuthzService resolves what a user may do from effective role assignments.
// Every boolean answer fails closed: on a store error it is false plus the error.
type AuthzService struct {
	roles       repository.RoleRepository
	assignments repository.AssignmentRepository
	metrics     *metrics.Metrics
	now         func() time.Time
}

// AuthzOption configures AuthzService.
type AuthzOption func(*AuthzService)

// WithAuthzClock overrides the time source used for expiry checks.
func WithAuthzClock(fn func() time.Time) AuthzOption {
	return func(s *AuthzService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAuthzMetrics records permission decisions.
func WithAuthzMetrics(m *metrics.Metrics) AuthzOption {
	return func(s *AuthzService) { s.metrics = m }
}

// NewAuthzService constructs AuthzService.
func NewAuthzService(roles repository.RoleRepository, assignments repository.AssignmentRepository, opts ...AuthzOption) (*AuthzService, error) {
	if roles == nil || assignments == nil {
		return nil, errors.New("role and assignment stores are required")
	}
	s := &AuthzService{roles: roles, assignments: assignments, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AssignRole grants roleID to userID, reactivating a revoked pair and
// replacing its expiry and grantor.
func (s *AuthzService) AssignRole(
	ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time, grantedBy *uuid.UUID,
) (*model.UserRoleAssignment, error) {
	if userID == uuid.Nil || roleID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id and role_id are required", errs.ErrInvalidInput)
	}
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return s.assignments.Upsert(ctx, &model.UserRoleAssignment{
		ID:        id,
		UserID:    userID,
		RoleID:    roleID,
		State:     model.AssignmentActive,
		ExpiresAt: expiresAt,
		GrantedBy: grantedBy,
	})
}

// RemoveRole revokes the pair without deleting it.
func (s *AuthzService) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return s.assignments.SetState(ctx, userID, roleID, model.AssignmentRevoked)
}

func (s *AuthzService) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	return s.assignments.Delete(ctx, id)
}

// ListAssignments returns every assignment of userID, revoked ones included.
func (s *AuthzService) ListAssignments(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error) {
	return s.assignments.ListByUser(ctx, userID)
}

// EffectiveAssignments returns active, unexpired assignments.
func (s *AuthzService) EffectiveAssignments(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error) {
	return s.assignments.ListEffective(ctx, userID, s.now())
}

// effectiveRoles loads the roles behind effective assignments. Roles deleted
// since assignment are skipped.
func (s *AuthzService) effectiveRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	as, err := s.EffectiveAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	if len(as) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(as))
	for i, a := range as {
		ids[i] = a.RoleID
	}
	roles, err := s.roles.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

// grantSet is one user's resolved view: admin flag plus the union of
// permissions from active roles.
type grantSet struct {
	admin bool
	perms map[string]struct{}
}

func (g grantSet) has(perm string) bool {
	if g.admin {
		return true
	}
	_, ok := g.perms[perm]
	return ok
}

// isAdminRole is the only place the admin bypass is decided.
func isAdminRole(r model.Role) bool { return r.Name == model.AdminRoleName }

func (s *AuthzService) grants(ctx context.Context, userID uuid.UUID) (grantSet, error) {
	roles, err := s.effectiveRoles(ctx, userID)
	if err != nil {
		return grantSet{}, err
	}
	g := grantSet{perms: make(map[string]struct{})}
	for _, r := range roles {
		if isAdminRole(r) {
			g.admin = true
		}
		if !r.IsActive {
			continue
		}
		for _, p := range r.Permissions {
			g.perms[p] = struct{}{}
		}
	}
	return g, nil
}

// HasRole reports whether userID effectively holds roleName.
func (s *AuthzService) HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	roles, err := s.effectiveRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(roles, func(r model.Role) bool { return r.Name == roleName }), nil
}

// HasPermission reports whether userID may perform perm.
func (s *AuthzService) HasPermission(ctx context.Context, userID uuid.UUID, perm string) (bool, error) {
	return s.decide(ctx, userID, []string{perm}, true)
}

// HasAllPermissions is true when every name is granted; an empty list is true.
func (s *AuthzService) HasAllPermissions(ctx context.Context, userID uuid.UUID, perms []string) (bool, error) {
	return s.decide(ctx, userID, perms, true)
}

// RequirePermissions returns errs.ErrUnauthorized unless every name is granted.
func (s *AuthzService) RequirePermissions(ctx context.Context, userID uuid.UUID, perms []string) error {
	ok, err := s.decide(ctx, userID, perms, true)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrUnauthorized
	}
	return nil
}

// HasAnyPermission is true when at least one name is granted; an empty list is false.
func (s *AuthzService) HasAnyPermission(ctx context.Context, userID uuid.UUID, perms []string) (bool, error) {
	return s.decide(ctx, userID, perms, false)
}

func (s *AuthzService) decide(ctx context.Context, userID uuid.UUID, perms []string, all bool) (ok bool, err error) {
	start := time.Now()
	defer func() {
		result := "deny"
		switch {
		case err != nil:
			result = "error"
		case ok:
			result = "allow"
		}
		s.metrics.RecordPermissionCheck(result, time.Since(start))
	}()

	if len(perms) > MaxPermissionQuery {
		return false, fmt.Errorf("%w: at most %d permissions per check", errs.ErrInvalidInput, MaxPermissionQuery)
	}
	if len(perms) == 0 {
		return all, nil
	}
	g, err := s.grants(ctx, userID)
	if err != nil {
		return false, err
	}
	if all {
		for _, p := range perms {
			if !g.has(p) {
				return false, nil
			}
		}
		return true, nil
	}
	return slices.ContainsFunc(perms, g.has), nil
}

// EffectivePermissions returns the sorted union of granted names, or ["*"] for admins.
func (s *AuthzService) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	g, err := s.grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	if g.admin {
		return []string{Wildcard}, nil
	}
	out := make([]string, 0, len(g.perms))
	for p := range g.perms {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}
