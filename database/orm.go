package database

import (
	"context"
	"database/sql"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ORM 在写句柄上打开一个 GORM 会话。
//
// 语句按调用时刻路由：物理事务打开时走事务，否则走连接本身，
// 因此在 BeginTransaction 之后取得的 *gorm.DB 参与该事务。
// 通过 GORM 执行的语句不会触发自动归还，调用方在用完后 Release(false)。
func (c *Connection) ORM(ctx context.Context) (*gorm.DB, error) {
	if c.session == nil {
		return nil, ErrConnectionReleased
	}
	h, err := c.handle(ctx, RoleWrite)
	if err != nil {
		return nil, err
	}
	pool := &handleConnPool{handle: h}

	var dialector gorm.Dialector
	switch c.grammar.Name() {
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: pool})
	case "sqlite":
		dialector = &sqlite.Dialector{Conn: pool}
	default:
		dialector = mysql.New(mysql.Config{Conn: pool, SkipInitializeWithVersion: true})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// handleConnPool 让 GORM 每次调用都取句柄当前的执行器
type handleConnPool struct {
	handle *Handle
}

func (p *handleConnPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return p.handle.executor().PrepareContext(ctx, query)
}

func (p *handleConnPool) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.handle.executor().ExecContext(ctx, query, args...)
}

func (p *handleConnPool) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.handle.executor().QueryContext(ctx, query, args...)
}

func (p *handleConnPool) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return p.handle.executor().QueryRowContext(ctx, query, args...)
}
