package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

func TestCredentials_EmailIsCaseInsensitiveAndUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewCredentials()

	c := &model.Credential{UserID: newID(), Email: "Ana@Example.com", PwdHash: "h"}
	require.NoError(t, s.Create(ctx, c))
	require.ErrorIs(t, s.Create(ctx, &model.Credential{UserID: newID(), Email: "ana@example.COM"}), errs.ErrConflict)

	got, err := s.GetByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	require.Equal(t, c.UserID, got.UserID)

	require.NoError(t, s.UpdateHash(ctx, c.UserID, "h2"))
	got, _ = s.GetByID(ctx, c.UserID)
	require.Equal(t, "h2", got.PwdHash)
	require.ErrorIs(t, s.UpdateHash(ctx, newID(), "x"), errs.ErrNotFound)
}

func TestTokens_MarkUsedHasSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTokens()
	tok := &model.Token{ID: newID(), SubjectID: newID(), Value: "v", Kind: model.TokenRefresh, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Create(ctx, tok))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkUsed(ctx, tok.ID); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	got, err := s.GetByValue(ctx, "v")
	require.NoError(t, err)
	require.True(t, got.Used)
}

func TestTokens_DeleteBySubjectAndExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTokens()
	sub := newID()
	now := time.Now()
	mk := func(v string, kind model.TokenKind, used bool, exp time.Time) *model.Token {
		tok := &model.Token{ID: newID(), SubjectID: sub, Value: v, Kind: kind, Used: used, ExpiresAt: exp}
		require.NoError(t, s.Create(ctx, tok))
		return tok
	}
	mk("r1", model.TokenRefresh, false, now.Add(time.Hour))
	mk("r2", model.TokenRefresh, false, now.Add(time.Hour))
	mk("x1", model.TokenReset, true, now.Add(time.Hour))
	mk("x2", model.TokenReset, false, now.Add(-time.Minute))

	n, err := s.DeleteBySubject(ctx, sub, model.TokenRefresh, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = s.DeleteBySubject(ctx, sub, model.TokenReset, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "used reset tokens survive")

	n, err = s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	require.Equal(t, 1, s.Len())

	require.ErrorIs(t, s.DeleteByValue(ctx, "nope"), errs.ErrNotFound)
}

func TestTokens_DeleteOlderOrdersByCreatedThenID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTokens()
	sub := newID()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mk := func(v string, created time.Time, id uuid.UUID) *model.Token {
		tok := &model.Token{ID: id, SubjectID: sub, Value: v, Kind: model.TokenRefresh, CreatedAt: created, ExpiresAt: created.Add(time.Hour)}
		require.NoError(t, s.Create(ctx, tok))
		return tok
	}
	low := uuid.FromStringOrNil("00000000-0000-4000-8000-000000000001")
	high := uuid.FromStringOrNil("ffffffff-0000-4000-8000-000000000001")

	mk("old", at.Add(-time.Minute), high)
	tieLow := mk("tie-low", at, low)
	ref := mk("ref", at, newID())
	mk("newer", at.Add(time.Second), newID())
	require.NoError(t, s.Create(ctx, &model.Token{ID: newID(), SubjectID: sub, Value: "reset", Kind: model.TokenReset, CreatedAt: at.Add(-time.Hour)}))
	require.NoError(t, s.Create(ctx, &model.Token{ID: newID(), SubjectID: newID(), Value: "other", Kind: model.TokenRefresh, CreatedAt: at.Add(-time.Hour)}))

	n, err := s.DeleteOlder(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(2), n, "older row and the lower id at the same instant")

	for _, v := range []string{"ref", "newer", "reset", "other"} {
		_, err := s.GetByValue(ctx, v)
		require.NoError(t, err, v)
	}
	_, err = s.GetByValue(ctx, tieLow.Value)
	require.ErrorIs(t, err, errs.ErrNotFound)

	n, err = s.DeleteOlder(ctx, tieLow)
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "an older reference never removes newer tokens")
}

func TestRoles_CreateValidatesAllReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := NewRBAC()
	require.NoError(t, db.Permissions().Create(ctx, &model.Permission{ID: newID(), Name: "docs:read"}))

	err := db.Roles().Create(ctx, &model.Role{ID: newID(), Name: "r", Permissions: []string{"a:b", "docs:read", "c:d"}})
	var missing *errs.MissingReferencesError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{"a:b", "c:d"}, missing.Names)

	_, err = db.Roles().GetByName(ctx, "r")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRoles_AddRemovePermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := NewRBAC()
	for _, n := range []string{"docs:read", "docs:write"} {
		require.NoError(t, db.Permissions().Create(ctx, &model.Permission{ID: newID(), Name: n}))
	}
	role := &model.Role{ID: newID(), Name: "editor", Permissions: []string{"docs:read"}}
	require.NoError(t, db.Roles().Create(ctx, role))
	require.ErrorIs(t, db.Roles().Create(ctx, &model.Role{ID: newID(), Name: "editor"}), errs.ErrConflict)

	got, err := db.Roles().AddPermissions(ctx, role.ID, []string{"docs:write", "docs:read"})
	require.NoError(t, err)
	require.Equal(t, []string{"docs:read", "docs:write"}, got.Permissions)

	got, err = db.Roles().RemovePermissions(ctx, role.ID, []string{"docs:read", "ghost:x"})
	require.NoError(t, err)
	require.Equal(t, []string{"docs:write"}, got.Permissions)

	got.Permissions[0] = "mutated"
	again, _ := db.Roles().GetByID(ctx, role.ID)
	require.Equal(t, []string{"docs:write"}, again.Permissions)
}

func TestAssignments_UpsertReactivatesAndFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := NewRBAC()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return now })
	as := db.Assignments()
	user, role := newID(), newID()

	first, err := as.Upsert(ctx, &model.UserRoleAssignment{ID: newID(), UserID: user, RoleID: role})
	require.NoError(t, err)
	require.NoError(t, as.SetState(ctx, user, role, model.AssignmentRevoked))

	eff, _ := as.ListEffective(ctx, user, now)
	require.Empty(t, eff)

	exp := now.Add(time.Hour)
	again, err := as.Upsert(ctx, &model.UserRoleAssignment{ID: newID(), UserID: user, RoleID: role, ExpiresAt: &exp})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, model.AssignmentActive, again.State)

	eff, _ = as.ListEffective(ctx, user, now)
	require.Len(t, eff, 1)
	eff, _ = as.ListEffective(ctx, user, exp)
	require.Empty(t, eff, "expiry is exclusive")

	all, _ := as.ListByUser(ctx, user)
	require.Len(t, all, 1)
	require.ErrorIs(t, as.SetState(ctx, newID(), role, model.AssignmentRevoked), errs.ErrNotFound)
}
