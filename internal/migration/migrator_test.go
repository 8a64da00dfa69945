package migration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/glebarez/go-sqlite"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"pgx", DatabaseTypePostgres, false},
		{"PG", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_add_email.up.sql":   {Data: []byte("x")},
		"000002_add_email.down.sql": {Data: []byte("x")},
		"000001_init.up.sql":        {Data: []byte("x")},
		"000001_init.down.sql":      {Data: []byte("x")},
		"README.md":                 {Data: []byte("x")},
		"bogus.up.sql":              {Data: []byte("x")},
	}

	files, err := availableMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []migrationFile{{1, "init"}, {2, "add_email"}}, files)
}

func TestNewMigrator_Validation(t *testing.T) {
	_, err := NewMigrator(nil, Config{DatabaseType: DatabaseTypeSQLite, Source: fstest.MapFS{}}, nil)
	assert.Error(t, err)

	_, err = NewMigratorFromDir(nil, "oracle", t.TempDir(), nil)
	assert.Error(t, err)

	_, err = NewMigratorFromDir(nil, "sqlite", filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorContains(t, err, "migrations directory")
}

func writeMigrations(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"000001_init.up.sql":        "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);",
		"000001_init.down.sql":      "DROP TABLE users;",
		"000002_add_email.up.sql":   "ALTER TABLE users ADD COLUMN email TEXT;",
		"000002_add_email.down.sql": "ALTER TABLE users DROP COLUMN email;",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestDefaultMigrator_SQLiteLifecycle(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)

	m, err := NewMigratorFromDir(db, "sqlite", writeMigrations(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, &MigrationInfo{TotalMigrations: 2, PendingMigrations: 2}, info)

	require.NoError(t, m.Up(ctx))
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// 重复 Up 无变化
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MigrationStatus{
		{Version: 1, Name: "init", Applied: true},
		{Version: 2, Name: "add_email", Applied: false},
	}, statuses)

	require.NoError(t, m.Goto(ctx, 2))
	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, m.Force(ctx, 1))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
