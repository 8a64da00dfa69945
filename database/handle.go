package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/config"
)

// =============================================================================
// 🔌 物理连接
// =============================================================================

// Target 一个数据库端点
type Target struct {
	Name   string `yaml:"name" json:"name"`
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"-"`
}

// Connector 为目标建立物理连接
type Connector interface {
	Connect(ctx context.Context, target Target) (*Handle, error)
}

// executor 是 *sql.Conn 与 *sql.Tx 的公共子集，同时满足 gorm.ConnPool
type executor interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Handle 一条独占的物理连接。
// 同一时刻只属于一个 Connection；存在物理事务时所有语句都走事务。
type Handle struct {
	target   Target
	conn     *sql.Conn
	tx       *sql.Tx
	openedAt time.Time
}

// NewHandle 包装一条已建立的 *sql.Conn
func NewHandle(target Target, conn *sql.Conn) *Handle {
	return &Handle{target: target, conn: conn, openedAt: time.Now()}
}

// Target 返回该连接对应的端点
func (h *Handle) Target() Target { return h.target }

// InTransaction 是否存在未结束的物理事务
func (h *Handle) InTransaction() bool { return h.tx != nil }

// Ping 探活
func (h *Handle) Ping(ctx context.Context) error {
	return h.conn.PingContext(ctx)
}

func (h *Handle) executor() executor {
	if h.tx != nil {
		return h.tx
	}
	return h.conn
}

// begin 开启物理事务。事务生命周期跨越多次调用，不随单次调用的 ctx 取消而回滚。
func (h *Handle) begin(ctx context.Context) error {
	if h.tx != nil {
		return errors.New("physical transaction already open")
	}
	tx, err := h.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return err
	}
	h.tx = tx
	return nil
}

func (h *Handle) commit() error {
	if h.tx == nil {
		return errors.New("no physical transaction to commit")
	}
	tx := h.tx
	h.tx = nil
	return tx.Commit()
}

func (h *Handle) rollback() error {
	if h.tx == nil {
		return errors.New("no physical transaction to roll back")
	}
	tx := h.tx
	h.tx = nil
	return tx.Rollback()
}

// Close 回滚残留事务并归还底层连接
func (h *Handle) Close() error {
	var errs []error
	if h.tx != nil {
		if err := h.rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
	}
	if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🏭 database/sql 连接器
// =============================================================================

// OpenFunc 打开一个 *sql.DB，测试中可替换
type OpenFunc func(driver, dsn string) (*sql.DB, error)

// SQLConnector 为每个 (driver, dsn) 懒加载一个 *sql.DB，并为每个 Handle 固定一条 *sql.Conn
type SQLConnector struct {
	mu     sync.Mutex
	dbs    map[string]*sql.DB
	open   OpenFunc
	config config.PoolConfig
	logger *zap.Logger
	closed bool
}

// SQLConnectorOption 配置 SQLConnector
type SQLConnectorOption func(*SQLConnector)

// WithOpenFunc 替换 sql.Open
func WithOpenFunc(open OpenFunc) SQLConnectorOption {
	return func(c *SQLConnector) {
		c.open = open
	}
}

// NewSQLConnector 创建连接器
func NewSQLConnector(cfg config.PoolConfig, logger *zap.Logger, opts ...SQLConnectorOption) *SQLConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SQLConnector{
		dbs:    make(map[string]*sql.DB),
		open:   sql.Open,
		config: cfg,
		logger: logger.With(zap.String("component", "db_connector")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect 建立并验证一条物理连接
func (c *SQLConnector) Connect(ctx context.Context, target Target) (*Handle, error) {
	db, err := c.db(target)
	if err != nil {
		return nil, err
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connection to %s: %w", target.Name, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", target.Name, err)
	}

	c.logger.Debug("physical connection established",
		zap.String("target", target.Name),
		zap.String("driver", target.Driver),
	)
	return NewHandle(target, conn), nil
}

func (c *SQLConnector) db(target Target) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connector is closed")
	}

	key := target.Driver + "\x00" + target.DSN
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}

	db, err := c.open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database %s: %w", target.Driver, target.Name, err)
	}
	if c.config.MaxOpenPerTarget > 0 {
		db.SetMaxOpenConns(c.config.MaxOpenPerTarget)
	}
	if c.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.config.ConnMaxLifetime)
	}
	c.dbs[key] = db
	return db, nil
}

// Close 关闭所有底层 *sql.DB
func (c *SQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for key, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.dbs, key)
	}
	return errors.Join(errs...)
}
