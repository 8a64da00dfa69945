package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/dbmux/internal/migration"
)

// fakeMigrator 记录调用
type fakeMigrator struct {
	calls   []string
	version uint
	forced  int
}

func (f *fakeMigrator) Up(context.Context) error      { f.calls = append(f.calls, "up"); return nil }
func (f *fakeMigrator) Down(context.Context) error    { f.calls = append(f.calls, "down"); return nil }
func (f *fakeMigrator) DownAll(context.Context) error { f.calls = append(f.calls, "reset"); return nil }
func (f *fakeMigrator) Steps(context.Context, int) error {
	f.calls = append(f.calls, "steps")
	return nil
}
func (f *fakeMigrator) Goto(_ context.Context, v uint) error {
	f.calls = append(f.calls, "goto")
	f.version = v
	return nil
}
func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}
func (f *fakeMigrator) Version(context.Context) (uint, bool, error) { return f.version, false, nil }
func (f *fakeMigrator) Status(context.Context) ([]migration.MigrationStatus, error) {
	return []migration.MigrationStatus{{Version: 1, Name: "init", Applied: true}}, nil
}
func (f *fakeMigrator) Info(context.Context) (*migration.MigrationInfo, error) {
	return &migration.MigrationInfo{CurrentVersion: f.version, TotalMigrations: 1, AppliedMigrations: 1}, nil
}
func (f *fakeMigrator) Close() error { return nil }

func TestMigrateCommand(t *testing.T) {
	ctx := context.Background()
	f := &fakeMigrator{}
	var out bytes.Buffer

	require.NoError(t, migrateCommand(ctx, &out, f, "up", nil))
	require.NoError(t, migrateCommand(ctx, &out, f, "down", nil))
	require.NoError(t, migrateCommand(ctx, &out, f, "reset", nil))
	require.NoError(t, migrateCommand(ctx, &out, f, "goto", []string{"3"}))
	require.NoError(t, migrateCommand(ctx, &out, f, "force", []string{"2"}))
	assert.Equal(t, []string{"up", "down", "reset", "goto", "force"}, f.calls)
	assert.Equal(t, uint(3), f.version)
	assert.Equal(t, 2, f.forced)

	require.NoError(t, migrateCommand(ctx, &out, f, "version", nil))
	assert.Contains(t, out.String(), "version 3 (dirty: false)")

	out.Reset()
	require.NoError(t, migrateCommand(ctx, &out, f, "status", nil))
	assert.Contains(t, out.String(), `"current_version": 3`)
	assert.Contains(t, out.String(), `"name": "init"`)
}

func TestMigrateCommand_BadArgs(t *testing.T) {
	ctx := context.Background()
	f := &fakeMigrator{}
	var out bytes.Buffer

	assert.Error(t, migrateCommand(ctx, &out, f, "goto", nil))
	assert.Error(t, migrateCommand(ctx, &out, f, "force", []string{"x"}))
	assert.Error(t, migrateCommand(ctx, &out, f, "force", []string{"-1"}))
	assert.Error(t, migrateCommand(ctx, &out, f, "sideways", nil))
	assert.Empty(t, f.calls)
}
