package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/dbmux/internal/ctxkeys"
	"github.com/BaSui01/dbmux/types"
)

func TestSession_IDFromRequest(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	sess := env.pool.NewSession(ctxkeys.WithRequestID(context.Background(), "req-42"))
	assert.Equal(t, "req-42", sess.ID())

	anon := env.pool.NewSession(context.Background())
	assert.NotEmpty(t, anon.ID())
	assert.NotEqual(t, sess.ID(), anon.ID())
}

func TestSession_ConnectionReturnsAnchorInTransaction(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	sess := env.pool.NewSession(context.Background())
	ctx := context.Background()

	env.write.ExpectBegin()
	env.write.ExpectPrepare("insert into t values (?)").ExpectExec().
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.write.ExpectPrepare("insert into t values (?)").ExpectExec().
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	env.write.ExpectCommit()

	require.NoError(t, sess.BeginTransaction(ctx))
	anchor := sess.State().Anchor()
	require.NotNil(t, anchor)

	c, err := sess.Connection(ctx)
	require.NoError(t, err)
	assert.Same(t, anchor, c)

	require.NoError(t, sess.Insert(ctx, "insert into t values (?)", []any{1}))
	require.NoError(t, sess.Insert(ctx, "insert into t values (?)", []any{2}))
	assert.Equal(t, 1, env.pool.Stats().Open, "all statements share the anchor")

	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 0, env.pool.Stats().InUse)
	env.assertMet(t)
}

func TestSession_TransactionStateIsPerRequest(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	env.write.ExpectBegin()

	a := env.pool.NewSession(ctx)
	b := env.pool.NewSession(ctx)
	require.NoError(t, a.BeginTransaction(ctx))

	assert.Equal(t, 1, a.TransactionLevel())
	assert.Equal(t, 0, b.TransactionLevel())

	cb, err := b.Connection(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a.State().Anchor(), cb)
	assert.Equal(t, 0, cb.TransactionLevel())
}

func TestSession_CloseRollsBackAndReleases(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	sess := env.pool.NewSession(context.Background())
	ctx := context.Background()

	env.write.ExpectBegin()
	env.write.ExpectExec("SAVEPOINT trans2").WillReturnResult(sqlmock.NewResult(0, 0))
	env.write.ExpectRollback()

	require.NoError(t, sess.BeginTransaction(ctx))
	require.NoError(t, sess.BeginTransaction(ctx))

	// 一个未使用的额外连接
	_, err := sess.Pool().get(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, env.pool.Stats().InUse)

	require.NoError(t, sess.Close(ctx))
	assert.Equal(t, 0, sess.TransactionLevel())
	assert.Equal(t, 0, env.pool.Stats().InUse)
	require.NoError(t, sess.Close(ctx))

	_, err = sess.Connection(ctx)
	assert.True(t, types.IsErrorCode(err, types.ErrSessionClosed))
	env.assertMet(t)
}

func TestSession_NoTransactionShortcuts(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	sess := env.pool.NewSession(context.Background())
	ctx := context.Background()

	assert.NoError(t, sess.Commit(ctx))
	assert.NoError(t, sess.RollBack(ctx))
	assert.NoError(t, sess.RollBackTo(ctx, 0))
	assert.Equal(t, 0, env.pool.Stats().Open, "no connection checked out")
}

func TestSession_Cursor(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	sess := env.pool.NewSession(context.Background())

	env.write.ExpectPrepare("select 1").ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	cur, err := sess.Cursor(context.Background(), "select 1", nil, true)
	require.NoError(t, err)

	n := 0
	for _, err := range cur.All() {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, env.pool.Stats().InUse)
}
