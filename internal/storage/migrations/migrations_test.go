package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	stmts []string
	err   error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, sql)
	return pgconn.CommandTag{}, r.err
}

type recordingCHExecer struct {
	stmts []string
}

func (r *recordingCHExecer) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestRunPostgresMigrations_AppliesEmbeddedFiles(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, RunPostgresMigrations(context.Background(), db))

	require.Len(t, db.stmts, 1)
	assert.Contains(t, db.stmts[0], "CREATE TABLE IF NOT EXISTS pools")
	assert.Contains(t, db.stmts[0], "UNIQUE (exchange_name, chain_id)")
}

func TestRunPostgresMigrations_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	err := RunPostgresMigrations(context.Background(), &recordingExecer{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "001_init.sql")
}

func TestApplyClickhouse_SplitsStatements(t *testing.T) {
	db := &recordingCHExecer{}
	require.NoError(t, ApplyClickhouse(context.Background(), db))

	require.Len(t, db.stmts, 1)
	assert.True(t, strings.HasPrefix(db.stmts[0], "CREATE TABLE IF NOT EXISTS pool_liquidity_snapshots"))
	assert.NotContains(t, db.stmts[0], ";")
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- comment; with semicolon
CREATE TABLE a (x UInt8);

CREATE TABLE b (y UInt8)
ENGINE = Memory;
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8)", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y UInt8)\nENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'a''b'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/pools")
	require.NoError(t, err)
	assert.Equal(t, "pools", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
