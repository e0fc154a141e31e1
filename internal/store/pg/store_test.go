package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"resturant.app/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestInTxCommitsAndJoins(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("update users set token_version = token_version \\+ 1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(3))
	mock.ExpectCommit()

	var version int
	err := store.InTx(context.Background(), func(tx auth.Store) error {
		// nested InTx must not open a second transaction
		return tx.InTx(context.Background(), func(inner auth.Store) error {
			v, err := inner.Users().IncrementTokenVersion(context.Background(), "u1")
			version = v
			return err
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if version != 3 {
		t.Fatalf("version=%d", version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateRollsBackWhenOldTokenAlreadyRevoked(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := auth.NewLedger(store, time.Hour, func() time.Time { return now })

	old := auth.RefreshToken{ID: "old", UserID: "u1"}
	next := auth.RefreshToken{ID: "next", UserID: "u1", TokenHash: "h", JwtID: "j", CreatedOn: now, ExpiresOn: now.Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("next", "u1", "h", "j", next.ExpiresOn, next.CreatedOn, "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens\\s+set revoked_on = \\$2, revoked_by_ip = \\$3, replaced_by_token_id = nullif\\(\\$4, ''\\)\\s+where id = \\$1 and revoked_on is null").
		WithArgs("old", now, "9.9.9.9", "next").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ledger.Rotate(context.Background(), old, next, "9.9.9.9")
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_normalized_email_key"})

	err := store.Users().Create(context.Background(), &auth.User{Email: "dup@example.com"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindByEmailNormalizesAndMapsNoRows(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from users where normalized_email = \\$1").
		WithArgs("SOMEONE@EXAMPLE.COM").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Users().FindByEmail(context.Background(), " someone@example.com ")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindUserScansLockout(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	lockout := created.Add(5 * time.Minute)
	cols := []string{"id", "email", "normalized_email", "password_hash", "full_name", "phone_number", "avatar_url",
		"email_confirmed", "is_deleted", "token_version", "access_failed_count", "lockout_end", "created_at", "updated_at"}
	mock.ExpectQuery("from users where id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@b.c", "A@B.C", "hash", "A", "", "", true, false, 2, 0, lockout, created, created))

	u, err := store.Users().Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.TokenVersion != 2 || u.LockoutEnd == nil || !u.LockoutEnd.Equal(lockout) {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestDeletePermissionReferenced(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from permissions where id = \\$1").
		WithArgs(int64(7)).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, TableName: "role_permissions"})

	err := store.Permissions().Delete(context.Background(), 7)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRemoveRoleMissingLink(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1", "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users().RemoveRole(context.Background(), "u1", "r1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeUserToken(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("update user_tokens").
		WithArgs("u1", auth.PurposePasswordReset, "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update user_tokens").
		WithArgs("u1", auth.PurposePasswordReset, "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.UserTokens().Consume(context.Background(), "u1", auth.PurposePasswordReset, "hash", now)
	if err != nil || !ok {
		t.Fatalf("first consume ok=%v err=%v", ok, err)
	}
	ok, err = store.UserTokens().Consume(context.Background(), "u1", auth.PurposePasswordReset, "hash", now)
	if err != nil || ok {
		t.Fatalf("second consume ok=%v err=%v", ok, err)
	}
}
