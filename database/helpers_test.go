package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/config"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

var errGoneAway = errors.New("Error 2006: MySQL server has gone away")

func newMock(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// fakeConnector 按目标名返回 sqlmock 连接，可注入建连失败
type fakeConnector struct {
	mu    sync.Mutex
	dbs   map[string]*sql.DB
	fails map[string]int
	calls map[string]int
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		dbs:   make(map[string]*sql.DB),
		fails: make(map[string]int),
		calls: make(map[string]int),
	}
}

func (f *fakeConnector) add(name string, db *sql.DB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dbs[name] = db
}

// failNext 让接下来 n 次对该目标的建连失败
func (f *fakeConnector) failNext(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[name] = n
}

func (f *fakeConnector) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeConnector) Connect(ctx context.Context, target Target) (*Handle, error) {
	f.mu.Lock()
	f.calls[target.Name]++
	if f.fails[target.Name] > 0 {
		f.fails[target.Name]--
		f.mu.Unlock()
		return nil, errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")
	}
	db, ok := f.dbs[target.Name]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown target " + target.Name)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return NewHandle(target, conn), nil
}

type testEnv struct {
	pool      *Pool
	connector *fakeConnector
	write     sqlmock.Sqlmock
	read      sqlmock.Sqlmock
}

type envOptions struct {
	reads   bool
	mode    FetchMode
	prefix  string
	poolCfg *config.PoolConfig
	opts    []Option
}

func newTestEnv(t testing.TB, eo envOptions) *testEnv {
	connector := newFakeConnector()

	writeDB, writeMock := newMock(t)
	connector.add("write-0", writeDB)
	writes := []Target{{Name: "write-0", Driver: "mysql"}}

	env := &testEnv{connector: connector, write: writeMock}

	var reads []Target
	if eo.reads {
		readDB, readMock := newMock(t)
		connector.add("read-0", readDB)
		reads = []Target{{Name: "read-0", Driver: "mysql"}}
		env.read = readMock
	}

	desc := NewStaticDescriptor(writes, reads, eo.prefix, eo.mode, connector)

	cfg := defaultTestPoolConfig()
	if eo.poolCfg != nil {
		cfg = *eo.poolCfg
	}
	opts := append([]Option{WithLogger(zap.NewNop())}, eo.opts...)
	pool, err := NewPool(desc, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	env.pool = pool
	return env
}

func (e *testEnv) checkout(t testing.TB) (*Session, *Connection) {
	sess := e.pool.NewSession(context.Background())
	conn, err := sess.Connection(context.Background())
	require.NoError(t, err)
	return sess, conn
}

func (e *testEnv) assertMet(t testing.TB) {
	require.NoError(t, e.write.ExpectationsWereMet())
	if e.read != nil {
		require.NoError(t, e.read.ExpectationsWereMet())
	}
}

func defaultTestPoolConfig() config.PoolConfig {
	return config.PoolConfig{MaxConnections: 4}
}
