package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE SCHEMA IF NOT EXISTS blacklists;")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply schema")
}

func TestSchemaCoversEveryTable(t *testing.T) {
	for _, table := range []string{"bio", "string", "channel", "domain", "file", "mhash", "tld"} {
		assert.Contains(t, schemaSQL, "blacklists."+table+" (")
	}
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS banlist")
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS chats")
}

func TestWithTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM banlist").WithArgs(int64(1)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "DELETE FROM banlist WHERE id = $1", int64(1))
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}
