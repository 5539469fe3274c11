package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestTokenRepo_CreateAndGet(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := &model.Token{
		ID: uuid.Must(uuid.NewV4()), SubjectID: uuid.Must(uuid.NewV4()),
		Value: "abc", Kind: model.TokenRefresh, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO tokens \(id, subject_id, value, kind, expires_at, used, created_at\)`).
		WithArgs(tok.ID, tok.SubjectID, "abc", "refresh", tok.ExpiresAt, false, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, tok))

	mock.ExpectQuery(`FROM tokens WHERE value=\$1`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"id", "subject_id", "value", "kind", "expires_at", "used", "created_at"}).
			AddRow(tok.ID, tok.SubjectID, "abc", "refresh", tok.ExpiresAt, false, now))
	got, err := r.GetByValue(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, model.TokenRefresh, got.Kind)
	require.Equal(t, tok.SubjectID, got.SubjectID)

	mock.ExpectQuery(`FROM tokens WHERE value=\$1`).
		WithArgs("zzz").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByValue(ctx, "zzz")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_MarkUsed_OnlyOnce(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE tokens SET used = true WHERE id = \$1 AND used = false`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE tokens SET used = true WHERE id = \$1 AND used = false`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := r.MarkUsed(ctx, id)
	require.NoError(t, err)
	require.True(t, won)
	won, err = r.MarkUsed(ctx, id)
	require.NoError(t, err)
	require.False(t, won)
}

func TestTokenRepo_Deletes(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	sub := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM tokens WHERE subject_id = \$1 AND kind = \$2 AND \(NOT \$3 OR used = false\)`).
		WithArgs(sub, "reset", true).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	n, err := r.DeleteBySubject(ctx, sub, model.TokenReset, true)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	ref := &model.Token{ID: uuid.Must(uuid.NewV4()), SubjectID: sub, Kind: model.TokenRefresh, CreatedAt: now}
	mock.ExpectExec(`DELETE FROM tokens WHERE subject_id = \$1 AND kind = \$2 AND \(created_at, id\) < \(\$3, \$4\)`).
		WithArgs(sub, "refresh", now, ref.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	n, err = r.DeleteOlder(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	mock.ExpectExec(`DELETE FROM tokens WHERE value = \$1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.DeleteByValue(ctx, "gone"), errs.ErrNotFound)

	mock.ExpectExec(`DELETE FROM tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	n, err = r.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
