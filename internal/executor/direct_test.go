package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "dbrestore/internal/errors"
)

func newMock(t *testing.T) (*Direct, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDirect(db, Options{}), mock
}

func expectOK(mock sqlmock.Sqlmock, stmt string) {
	mock.ExpectExec("SAVEPOINT dbrestore_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT dbrestore_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectFail(mock sqlmock.Sqlmock, stmt string, err error) {
	mock.ExpectExec("SAVEPOINT dbrestore_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(stmt).WillReturnError(err)
	mock.ExpectExec("ROLLBACK TO SAVEPOINT dbrestore_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectSession(mock sqlmock.Sqlmock) {
	expectFail(mock, "SET LOCAL row_security = off", &pgconn.PgError{Code: "42501", Message: "permission denied"})
	expectOK(mock, "SET CONSTRAINTS ALL DEFERRED")
	expectOK(mock, "SET LOCAL search_path = public")
}

func pgErr(code, msg string) error {
	return &pgconn.PgError{Severity: "ERROR", Code: code, Message: msg}
}

func TestDirectExecScriptLadder(t *testing.T) {
	d, mock := newMock(t)

	statements := []string{
		"CREATE TABLE users (id int)",
		"CREATE TABLE users (id int)",
		"-- nothing here",
		"INSERT INTO t VALUES ('{a: 1}'::jsonb)",
		"INSERT INTO t VALUES (ARRAY['a'])",
		"INSERT INTO t VALUES (ARRAY['a, b'])",
		"SELEC 1",
		"SELECT boom()",
	}

	mock.ExpectBegin()
	expectSession(mock)

	expectOK(mock, statements[0])
	expectFail(mock, statements[1], pgErr("42P07", `relation "users" already exists`))

	expectFail(mock, statements[3], pgErr("22P02", "invalid input syntax for type json"))
	expectOK(mock, "INSERT INTO t VALUES (to_jsonb('{a: 1}'::text))")

	expectFail(mock, statements[4], pgErr("42601", `syntax error at or near "["`))
	expectOK(mock, `INSERT INTO t VALUES ('{"a"}'::text[])`)

	expectFail(mock, statements[5], pgErr("42601", `syntax error at or near "["`))
	expectFail(mock, `INSERT INTO t VALUES ('{"a, b"}'::text[])`, pgErr("22P02", "malformed array literal"))
	expectOK(mock, `INSERT INTO t VALUES ('{"a","b"}'::text[])`)

	expectFail(mock, statements[6], pgErr("42601", `syntax error at or near "SELEC"`))
	expectFail(mock, statements[7], pgErr("XX000", "internal error"))

	mock.ExpectCommit()

	summary := d.ExecScript(context.Background(), statements)

	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.AggressiveFallbacks)
	assert.True(t, summary.Valid())
	require.Len(t, summary.FirstErrors, 2)
	assert.Contains(t, summary.FirstErrors[0], "#6")
	assert.Contains(t, summary.FirstErrors[1], "internal error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectExecScriptBeginFailure(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	summary := d.ExecScript(context.Background(), []string{"SELECT 1", "SELECT 2"})
	assert.Equal(t, 2, summary.Failed)
	assert.True(t, summary.Valid())
}

func TestDirectExecScriptCommitFailure(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectBegin()
	expectSession(mock)
	expectOK(mock, "SELECT 1")
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	summary := d.ExecScript(context.Background(), []string{"SELECT 1"})
	assert.Equal(t, 1, summary.Succeeded)
	require.NotEmpty(t, summary.FirstErrors)
	assert.Contains(t, summary.FirstErrors[0], "commit")
}

func TestDirectExecScriptSkipsTransactionControl(t *testing.T) {
	d, mock := newMock(t)

	statements := []string{
		"BEGIN",
		"CREATE TABLE a (id int)",
		"COMMIT",
		"-- next section\nSTART TRANSACTION",
		"CREATE TABLE b (id int)",
		"ROLLBACK TO SAVEPOINT inner_sp",
		"rollback",
		"END",
		"CREATE TABLE c (id int)",
	}

	mock.ExpectBegin()
	expectSession(mock)
	expectOK(mock, statements[1])
	expectOK(mock, statements[4])
	expectFail(mock, statements[5], pgErr("3B001", "no such savepoint"))
	expectOK(mock, statements[8])
	mock.ExpectCommit()

	summary := d.ExecScript(context.Background(), statements)

	assert.Equal(t, 9, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 5, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransactionControl(t *testing.T) {
	for _, stmt := range []string{
		"BEGIN", "begin transaction isolation level serializable", "COMMIT", "commit work",
		"END", "ABORT", "START TRANSACTION", "ROLLBACK", "ROLLBACK AND CHAIN", "/* x */ COMMIT",
	} {
		assert.True(t, isTransactionControl(stmt), stmt)
	}
	for _, stmt := range []string{
		"ROLLBACK TO SAVEPOINT sp", "rollback work to sp", "SAVEPOINT sp", "RELEASE SAVEPOINT sp",
		"INSERT INTO t VALUES ('COMMIT')", "START_DATE", "-- COMMIT", "",
		"CREATE FUNCTION f() RETURNS void AS $$ BEGIN END $$ LANGUAGE plpgsql",
	} {
		assert.False(t, isTransactionControl(stmt), stmt)
	}
}

func TestDirectStatementTimeoutSetting(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	d := NewDirect(db, Options{StatementTimeout: 1500 * time.Millisecond})

	mock.ExpectBegin()
	expectSession(mock)
	expectOK(mock, "SET LOCAL statement_timeout = 1500")
	mock.ExpectCommit()

	summary := d.ExecScript(context.Background(), nil)
	assert.Equal(t, 0, summary.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectBeginOverwriteListsTables(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(listTablesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("posts").AddRow("users"))
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE TABLE "posts", "users" RESTART IDENTITY CASCADE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, d.BeginOverwrite(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectBeginOverwriteFailureIsTruncationError(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE TABLE "users" RESTART IDENTITY CASCADE`).WillReturnError(pgErr("42501", "permission denied"))
	mock.ExpectRollback()

	err := d.BeginOverwrite(context.Background(), []string{"users"})
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeTruncation, rerrors.GetCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectBeginOverwriteNoTables(t *testing.T) {
	d, mock := newMock(t)
	assert.NoError(t, d.BeginOverwrite(context.Background(), []string{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectExec(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO "users" ("id") VALUES (1)`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, d.Exec(context.Background(), `INSERT INTO "users" ("id") VALUES (1)`))
	assert.Equal(t, KindDirect, d.Kind())
}

func TestTruncateStatement(t *testing.T) {
	assert.Equal(t,
		`TRUNCATE TABLE "public"."a", "b" RESTART IDENTITY CASCADE`,
		truncateStatement([]string{"public.a", "b"}))
}
