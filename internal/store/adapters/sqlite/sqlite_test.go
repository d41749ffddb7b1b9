package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/store"
	"github.com/dropDatabas3/cinelog/internal/store/storetest"
)

func openTestDB(t *testing.T) store.AdapterConnection {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	conn, err := (&sqliteAdapter{}).Connect(ctx, store.AdapterConfig{Name: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, store.Migrate(ctx, conn))
	return conn
}

func TestSQLiteAdapter(t *testing.T) {
	storetest.Run(t, openTestDB(t))
}

func TestSQLiteAdapter_Registered(t *testing.T) {
	a, ok := store.GetAdapter("sqlite")
	require.True(t, ok)
	assert.Equal(t, "sqlite", a.Name())

	_, err := a.Connect(context.Background(), store.AdapterConfig{})
	assert.Error(t, err)
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t,
		"cinelog.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		withPragmas("cinelog.db"))
	assert.Equal(t,
		"file:x?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		withPragmas("file:x?mode=memory"))
	full := "x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(1)&_time_format=sqlite"
	assert.Equal(t, full, withPragmas(full))
}

func TestForeignKeyToUnknownUser(t *testing.T) {
	conn := openTestDB(t)
	_, err := conn.AuthTokens().Create(context.Background(), repository.CreateAuthTokenInput{
		UserID:    "no-such-user",
		TokenHash: "h",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

// ─── Caminos de error con sqlmock ───

func newMock(t *testing.T) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewConnection(db), mock
}

func TestMarkUsed_DBError(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectExec(`UPDATE recovery_code SET used_at = \? WHERE id = \? AND used_at IS NULL`).
		WillReturnError(errors.New("disk I/O error"))

	ok, err := conn.RecoveryCodes().MarkUsed(context.Background(), "c1", time.Now())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_LostRace(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectExec(`UPDATE recovery_code SET used_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := conn.RecoveryCodes().MarkUsed(context.Background(), "c1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceForUser_RollsBackOnInsertError(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM recovery_code WHERE user_id = \?`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectPrepare(`INSERT INTO recovery_code`)
	mock.ExpectExec(`INSERT INTO recovery_code`).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	code, err := repository.NewRecoveryCode("u1", "hash", time.Now())
	require.NoError(t, err)
	err = conn.RecoveryCodes().ReplaceForUser(context.Background(), "u1", []repository.RecoveryCode{code})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmail_NotFound(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM app_user WHERE email = \?`).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := conn.Users().GetByEmail(context.Background(), "A@example.com")
	assert.True(t, repository.IsNotFound(err))
}

func TestAppendAudit_DBError(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO security_audit_log`).
		WillReturnError(errors.New("database is locked"))

	e, err := repository.NewAuditEvent("u1", repository.EventLogout, "", "", nil, time.Now())
	require.NoError(t, err)
	assert.Error(t, conn.Audit().Append(context.Background(), e))
}
