package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/config"
)

func TestSQLConnector_SharesDBPerTarget(t *testing.T) {
	opened := 0
	connector := NewSQLConnector(config.PoolConfig{MaxOpenPerTarget: 2}, zap.NewNop(),
		WithOpenFunc(func(driver, dsn string) (*sql.DB, error) {
			opened++
			return sql.Open(driver, dsn)
		}),
	)
	defer connector.Close()

	target := Target{Name: "w", Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "a.db")}
	ctx := context.Background()

	h1, err := connector.Connect(ctx, target)
	require.NoError(t, err)
	h2, err := connector.Connect(ctx, target)
	require.NoError(t, err)

	assert.Equal(t, 1, opened)
	assert.Equal(t, target, h1.Target())
	assert.NoError(t, h1.Ping(ctx))
	assert.NoError(t, h1.Close())
	assert.NoError(t, h2.Close())

	require.NoError(t, connector.Close())
	_, err = connector.Connect(ctx, target)
	assert.Error(t, err, "closed connector refuses new handles")
}

func TestSQLConnector_OpenFailure(t *testing.T) {
	connector := NewSQLConnector(config.PoolConfig{}, nil,
		WithOpenFunc(func(string, string) (*sql.DB, error) {
			return nil, errors.New("unknown driver")
		}),
	)

	_, err := connector.Connect(context.Background(), Target{Name: "w", Driver: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestHandle_TransactionRouting(t *testing.T) {
	db, mock := newMock(t)
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	h := NewHandle(Target{Name: "w"}, conn)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.False(t, h.InTransaction())
	require.NoError(t, h.begin(ctx))
	assert.True(t, h.InTransaction())
	assert.Error(t, h.begin(ctx), "no nested physical transactions")

	// Close 回滚残留事务
	require.NoError(t, h.Close())
	assert.False(t, h.InTransaction())
	assert.Error(t, h.commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
