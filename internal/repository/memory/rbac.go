package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
)

var (
	_ repository.PermissionRepository = PermissionStore{}
	_ repository.RoleRepository       = RoleStore{}
	_ repository.AssignmentRepository = AssignmentStore{}
)

// RBAC holds permissions, roles and assignments under one lock so role writes
// can validate permission names atomically, as the SQL store does in a transaction.
type RBAC struct {
	mu          sync.Mutex
	perms       map[uuid.UUID]model.Permission
	permByName  map[string]uuid.UUID
	roles       map[uuid.UUID]model.Role
	roleByName  map[string]uuid.UUID
	assignments map[uuid.UUID]model.UserRoleAssignment
	now         func() time.Time
}

// NewRBAC returns an empty RBAC store.
func NewRBAC() *RBAC {
	return &RBAC{
		perms:       make(map[uuid.UUID]model.Permission),
		permByName:  make(map[string]uuid.UUID),
		roles:       make(map[uuid.UUID]model.Role),
		roleByName:  make(map[string]uuid.UUID),
		assignments: make(map[uuid.UUID]model.UserRoleAssignment),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (s *RBAC) SetClock(fn func() time.Time) {
	s.mu.Lock()
	s.now = fn
	s.mu.Unlock()
}

// Permissions returns the permission view of the store.
func (s *RBAC) Permissions() PermissionStore { return PermissionStore{s} }

// Roles returns the role view of the store.
func (s *RBAC) Roles() RoleStore { return RoleStore{s} }

// Assignments returns the assignment view of the store.
func (s *RBAC) Assignments() AssignmentStore { return AssignmentStore{s} }

func (s *RBAC) missing(names []string) error {
	var out []string
	for _, n := range names {
		if _, ok := s.permByName[n]; !ok {
			out = append(out, n)
		}
	}
	if len(out) > 0 {
		return &errs.MissingReferencesError{Names: out}
	}
	return nil
}

func cloneRole(r model.Role) *model.Role {
	r.Permissions = slices.Clone(r.Permissions)
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	return &r
}

// PermissionStore implements repository.PermissionRepository.
type PermissionStore struct{ s *RBAC }

func (p PermissionStore) Create(_ context.Context, perm *model.Permission) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permByName[perm.Name]; ok {
		return errs.ErrConflict
	}
	now := s.now().UTC()
	perm.CreatedAt, perm.UpdatedAt = now, now
	s.perms[perm.ID] = *perm
	s.permByName[perm.Name] = perm.ID
	return nil
}

func (p PermissionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Permission, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &perm, nil
}

func (p PermissionStore) List(_ context.Context, group string) ([]model.Permission, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Permission
	for _, perm := range s.perms {
		if group == "" || perm.Group == group {
			out = append(out, perm)
		}
	}
	sortByName(out, func(p model.Permission) string { return p.Name })
	return out, nil
}

func (p PermissionStore) Update(_ context.Context, perm *model.Permission) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.perms[perm.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Description = perm.Description
	cur.Group = perm.Group
	cur.IsActive = perm.IsActive
	cur.UpdatedAt = s.now().UTC()
	s.perms[perm.ID] = cur
	perm.UpdatedAt = cur.UpdatedAt
	return nil
}

func (p PermissionStore) Delete(_ context.Context, id uuid.UUID) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(s.perms, id)
	delete(s.permByName, perm.Name)
	return nil
}

// RoleStore implements repository.RoleRepository.
type RoleStore struct{ s *RBAC }

func (r RoleStore) Create(_ context.Context, role *model.Role) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.missing(role.Permissions); err != nil {
		return err
	}
	if _, ok := s.roleByName[role.Name]; ok {
		return errs.ErrConflict
	}
	now := s.now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	s.roles[role.ID] = *cloneRole(*role)
	s.roleByName[role.Name] = role.ID
	return nil
}

func (r RoleStore) GetByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneRole(role), nil
}

func (r RoleStore) GetByName(_ context.Context, name string) (*model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.roleByName[name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneRole(s.roles[id]), nil
}

func (r RoleStore) GetMany(_ context.Context, ids []uuid.UUID) ([]model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Role
	for _, id := range ids {
		if role, ok := s.roles[id]; ok {
			out = append(out, *cloneRole(role))
		}
	}
	sortByName(out, func(r model.Role) string { return r.Name })
	return out, nil
}

func (r RoleStore) List(_ context.Context) ([]model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, *cloneRole(role))
	}
	sortByName(out, func(r model.Role) string { return r.Name })
	return out, nil
}

func (r RoleStore) Update(_ context.Context, role *model.Role) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.roles[role.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if err := s.missing(role.Permissions); err != nil {
		return err
	}
	if other, ok := s.roleByName[role.Name]; ok && other != role.ID {
		return errs.ErrConflict
	}
	delete(s.roleByName, cur.Name)
	role.CreatedAt = cur.CreatedAt
	role.UpdatedAt = s.now().UTC()
	s.roles[role.ID] = *cloneRole(*role)
	s.roleByName[role.Name] = role.ID
	return nil
}

func (r RoleStore) AddPermissions(_ context.Context, id uuid.UUID, names []string) (*model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if err := s.missing(names); err != nil {
		return nil, err
	}
	out := cloneRole(role)
	changed := false
	for _, n := range names {
		if !out.HasPermission(n) {
			out.Permissions = append(out.Permissions, n)
			changed = true
		}
	}
	if changed {
		out.UpdatedAt = s.now().UTC()
		s.roles[id] = *cloneRole(*out)
	}
	return out, nil
}

func (r RoleStore) RemovePermissions(_ context.Context, id uuid.UUID, names []string) (*model.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := cloneRole(role)
	out.Permissions = slices.DeleteFunc(out.Permissions, func(p string) bool { return slices.Contains(names, p) })
	out.UpdatedAt = s.now().UTC()
	s.roles[id] = *cloneRole(*out)
	return out, nil
}

func (r RoleStore) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.roleByName, role.Name)
	return nil
}

// AssignmentStore implements repository.AssignmentRepository.
type AssignmentStore struct{ s *RBAC }

func (a AssignmentStore) Upsert(_ context.Context, in *model.UserRoleAssignment) (*model.UserRoleAssignment, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for id, cur := range s.assignments {
		if cur.UserID == in.UserID && cur.RoleID == in.RoleID {
			cur.State = model.AssignmentActive
			cur.ExpiresAt = in.ExpiresAt
			cur.GrantedBy = in.GrantedBy
			cur.UpdatedAt = now
			s.assignments[id] = cur
			return &cur, nil
		}
	}
	out := *in
	out.State = model.AssignmentActive
	out.CreatedAt, out.UpdatedAt = now, now
	s.assignments[out.ID] = out
	return &out, nil
}

func (a AssignmentStore) SetState(_ context.Context, userID, roleID uuid.UUID, state model.AssignmentState) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.assignments {
		if cur.UserID == userID && cur.RoleID == roleID {
			cur.State = state
			cur.UpdatedAt = s.now().UTC()
			s.assignments[id] = cur
			return nil
		}
	}
	return errs.ErrNotFound
}

func (a AssignmentStore) Delete(_ context.Context, id uuid.UUID) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.assignments, id)
	return nil
}

func (a AssignmentStore) ListByUser(_ context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error) {
	return a.list(userID, func(model.UserRoleAssignment) bool { return true }), nil
}

func (a AssignmentStore) ListEffective(_ context.Context, userID uuid.UUID, now time.Time) ([]model.UserRoleAssignment, error) {
	return a.list(userID, func(x model.UserRoleAssignment) bool { return x.Effective(now) }), nil
}

func (a AssignmentStore) list(userID uuid.UUID, keep func(model.UserRoleAssignment) bool) []model.UserRoleAssignment {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UserRoleAssignment
	for _, x := range s.assignments {
		if x.UserID == userID && keep(x) {
			out = append(out, x)
		}
	}
	slices.SortFunc(out, func(x, y model.UserRoleAssignment) int { return x.CreatedAt.Compare(y.CreatedAt) })
	return out
}
