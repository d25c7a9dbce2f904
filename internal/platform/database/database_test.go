package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, DialectSQLite))
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteRejectsUnknownPrecedence(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, DialectSQLite))

	_, err = db.ExecContext(ctx,
		`INSERT INTO contacts (email, link_precedence, created_at, updated_at) VALUES ('a@b.co', 'tertiary', 0, 0)`)
	assert.Error(t, err)
}

func TestOpenSQLiteFileUsesWAL(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "contacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrateUnsupportedDialect(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = Migrate(ctx, db, Dialect("oracle"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect")
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	_, err := OpenPostgres(context.Background(), PostgresConfig{})
	assert.Error(t, err)
}
