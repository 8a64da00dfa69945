package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/dbmux/types"
)

const cursorQuery = "select id from events where kind = ?"

func TestCursor_IteratesLazily(t *testing.T) {
	env := newTestEnv(t, envOptions{reads: true})
	_, conn := env.checkout(t)

	env.read.ExpectPrepare(cursorQuery).WillBeClosed().ExpectQuery().
		WithArgs("click").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	cur, err := conn.Cursor(context.Background(), cursorQuery, []any{"click"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, env.pool.Stats().InUse, "connection held while the cursor is open")

	var ids []any
	for cur.Next() {
		ids = append(ids, cur.Row()["id"])
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ids)

	assert.Equal(t, 0, env.pool.Stats().InUse, "exhaustion closes and releases")
	assert.NoError(t, cur.Close(), "close is idempotent")
	env.assertMet(t)
}

func TestCursor_EarlyBreakReleases(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, conn := env.checkout(t)

	env.write.ExpectPrepare(cursorQuery).WillBeClosed().ExpectQuery().
		WithArgs("view").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	cur, err := conn.Cursor(context.Background(), cursorQuery, []any{"view"}, true)
	require.NoError(t, err)

	seen := 0
	for row, err := range cur.All() {
		require.NoError(t, err)
		assert.Equal(t, int64(1), row["id"])
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, 0, env.pool.Stats().InUse)
	assert.False(t, cur.Next())
	env.assertMet(t)
}

func TestCursor_RowErrorSurfacesAsQueryFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, conn := env.checkout(t)

	rowErr := errors.New("lost connection to MySQL server during query")
	env.write.ExpectPrepare(cursorQuery).ExpectQuery().
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).RowError(1, rowErr))

	cur, err := conn.Cursor(context.Background(), cursorQuery, []any{"x"}, false)
	require.NoError(t, err)

	var got []Row
	var iterErr error
	for row, err := range cur.All() {
		if err != nil {
			iterErr = err
			break
		}
		got = append(got, row)
	}

	assert.Len(t, got, 1)
	require.Error(t, iterErr)
	assert.True(t, types.IsQueryFailure(iterErr))
	assert.ErrorIs(t, iterErr, rowErr)
	assert.Equal(t, 0, env.pool.Stats().InUse)
}

func TestCursor_OpenFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, conn := env.checkout(t)

	env.write.ExpectPrepare(cursorQuery).WillReturnError(errors.New("syntax error"))

	cur, err := conn.Cursor(context.Background(), cursorQuery, []any{"x"}, false)
	require.Error(t, err)
	assert.Nil(t, cur)
	assert.True(t, types.IsQueryFailure(err))
	assert.Equal(t, 0, env.pool.Stats().InUse)
}
