package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestDSN(t *testing.T) {
	conf := &core.Config{}
	conf.Database.Engine = "postgres"
	conf.Database.Host = "db"
	conf.Database.Port = "5432"
	conf.Database.User = "hogwarts"
	conf.Database.Password = "s3cret"
	conf.Database.AdminUser = "postgres"
	conf.Database.AdminPassword = "root"

	assert.Equal(t, "postgres://hogwarts:s3cret@db:5432/school?sslmode=require&timezone=utc", dsn("school", false, conf))
	assert.Equal(t, "postgres://postgres:root@db:5432/postgres?sslmode=require&timezone=utc", dsn("postgres", true, conf))

	conf.Database.DisableTLS = true
	conf.Database.AdminUser = ""
	assert.Equal(t, "postgres://hogwarts:s3cret@db:5432/postgres?sslmode=disable&timezone=utc", dsn("postgres", true, conf))
}

func TestCreateAppUser(t *testing.T) {
	db, mock := newMock(t)
	conf := &core.Config{}
	conf.Database.User = "hogwarts"
	conf.Database.Password = "s3cret"

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM pg_roles WHERE rolname = \$1\)`).
		WithArgs("hogwarts").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`CREATE USER hogwarts CREATEDB ENCRYPTED PASSWORD 's3cret'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, createAppUser(db, conf))

	mock.ExpectQuery(`FROM pg_roles`).
		WithArgs("hogwarts").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	require.NoError(t, createAppUser(db, conf))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDB(t *testing.T) {
	db, mock := newMock(t)
	conf := &core.Config{}
	conf.Database.Name = "hogwarts"

	mock.ExpectQuery(`FROM pg_database WHERE datname = \$1`).
		WithArgs("hogwarts").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`CREATE DATABASE hogwarts`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, createDB(db, conf))

	mock.ExpectQuery(`FROM pg_database`).WillReturnError(errors.New("boom"))
	assert.EqualError(t, createDB(db, conf), "checking DB: boom")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigration(t *testing.T) {
	orig := gooseRun
	t.Cleanup(func() { gooseRun = orig })

	var got []string
	gooseRun = func(command string, _ *sqlx.DB, args ...string) error {
		got = append(append(got, command), args...)
		if command == "down-to" {
			return errors.New("no such version")
		}
		return nil
	}

	require.NoError(t, Migrate(nil))
	require.NoError(t, RunMigration(nil, "status"))
	assert.EqualError(t, RunMigration(nil, "down-to", "7"), "migrating database (down-to): no such version")
	assert.Equal(t, []string{"up", "status", "down-to", "7"}, got)
}

func TestWithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE wallet`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := NewTransactor(db).WithinTx(ctx, func(exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, "UPDATE wallet SET balance = 0")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		errFailed := errors.New("failed")
		err := NewTransactor(db).WithinTx(ctx, func(core.DBExecutor) error { return errFailed })
		assert.ErrorIs(t, err, errFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "oops", func() {
			_ = NewTransactor(db).WithinTx(ctx, func(core.DBExecutor) error { panic("oops") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

		called := false
		err := NewTransactor(db).WithinTx(ctx, func(core.DBExecutor) error { called = true; return nil })
		assert.EqualError(t, err, "beginning transaction: conn refused")
		assert.False(t, called)
	})
}
