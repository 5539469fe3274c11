package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestCredentialRepo_Create_LowercasesAndConflicts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &model.Credential{UserID: uuid.Must(uuid.NewV4()), Email: "Ana@Example.COM", PwdHash: "$2a$h"}

	mock.ExpectQuery(`INSERT INTO users \(id, email, pwd_hash\) VALUES \(\$1, \$2, \$3\) RETURNING created_at`).
		WithArgs(c.UserID, "ana@example.com", c.PwdHash).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	require.NoError(t, r.Create(ctx, c))
	require.Equal(t, created, c.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(c.UserID, "ana@example.com", c.PwdHash).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, email, pwd_hash, created_at FROM users WHERE email=\$1`).
		WithArgs("u@x.io").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "pwd_hash", "created_at"}).
			AddRow(id, "u@x.io", "h", time.Now()))
	c, err := r.GetByEmail(ctx, "U@x.io")
	require.NoError(t, err)
	require.Equal(t, id, c.UserID)
	require.Equal(t, "h", c.PwdHash)

	mock.ExpectQuery(`FROM users WHERE email=\$1`).
		WithArgs("none@x.io").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "none@x.io")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCredentialRepo_GetByID_PassesThroughDriverErrors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrTxClosed)
	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, pgx.ErrTxClosed)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestCredentialRepo_UpdateHash(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE users SET pwd_hash = \$2 WHERE id = \$1`).
		WithArgs(id, "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateHash(ctx, id, "new"))

	mock.ExpectExec(`UPDATE users SET pwd_hash`).
		WithArgs(id, "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateHash(ctx, id, "new"), errs.ErrNotFound)
}
