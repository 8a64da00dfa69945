package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/types"
)

// Session 一个逻辑请求的上下文，持有该请求的事务状态。
// 连接在检出时拿到会话引用，事务层级因此在同一请求内的所有连接间共享，
// 而不同请求互不可见。Session 不可并发使用。
type Session struct {
	id     string
	pool   *Pool
	tx     TxState
	held   map[*Connection]struct{}
	closed bool
	logger *zap.Logger
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// Grammar 连接池默认语法，供查询构建器使用
func (s *Session) Grammar() Grammar { return s.pool.Grammar() }

// Pool 所属连接池
func (s *Session) Pool() *Pool { return s.pool }

// TransactionLevel 当前事务嵌套层级
func (s *Session) TransactionLevel() int { return s.tx.depth }

// State 事务状态快照
func (s *Session) State() TxState { return s.tx }

// Connection 事务进行中返回锚点连接，否则从连接池检出一个新连接
func (s *Session) Connection(ctx context.Context) (*Connection, error) {
	if s.closed {
		return nil, types.NewError(types.ErrSessionClosed, "session is closed")
	}
	if s.tx.depth > 0 {
		return s.tx.anchor, nil
	}
	return s.pool.get(ctx, s)
}

// Close 结束会话：未结束的事务回滚到 0 层，仍被检出的连接全部强制归还。
// 回滚前先关闭这些连接上仍打开的游标。
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}

	for c := range s.held {
		if cerr := c.closeCursors(); cerr != nil {
			s.logger.Debug("close open cursors", zap.String("connection_id", c.id), zap.Error(cerr))
		}
	}

	var err error
	if s.tx.depth > 0 {
		s.logger.Warn("session closed with open transaction, rolling back",
			zap.Int("level", s.tx.depth),
		)
		err = s.tx.anchor.RollBackTo(ctx, 0)
	}
	for c := range s.held {
		c.Release(true)
	}
	s.closed = true
	return err
}

// =============================================================================
// 🧰 便捷方法：每次调用取一个连接，语句结束后按常规规则归还
// =============================================================================

// Select 见 Connection.Select
func (s *Session) Select(ctx context.Context, query string, bindings []any, useRead bool) ([]Row, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return nil, err
	}
	return c.Select(ctx, query, bindings, useRead)
}

// SelectOne 见 Connection.SelectOne
func (s *Session) SelectOne(ctx context.Context, query string, bindings []any, useRead bool) (Row, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return nil, err
	}
	return c.SelectOne(ctx, query, bindings, useRead)
}

// Cursor 见 Connection.Cursor
func (s *Session) Cursor(ctx context.Context, query string, bindings []any, useRead bool) (*Cursor, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return nil, err
	}
	return c.Cursor(ctx, query, bindings, useRead)
}

// Insert 见 Connection.Insert
func (s *Session) Insert(ctx context.Context, query string, bindings []any) error {
	c, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	return c.Insert(ctx, query, bindings)
}

// Statement 见 Connection.Statement
func (s *Session) Statement(ctx context.Context, query string, bindings []any) error {
	c, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	return c.Statement(ctx, query, bindings)
}

// Update 见 Connection.Update
func (s *Session) Update(ctx context.Context, query string, bindings []any) (int64, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return 0, err
	}
	return c.Update(ctx, query, bindings)
}

// Delete 见 Connection.Delete
func (s *Session) Delete(ctx context.Context, query string, bindings []any) (int64, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return 0, err
	}
	return c.Delete(ctx, query, bindings)
}

// Unprepared 见 Connection.Unprepared
func (s *Session) Unprepared(ctx context.Context, query string) error {
	c, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	return c.Unprepared(ctx, query)
}

// BeginTransaction 见 Connection.BeginTransaction
func (s *Session) BeginTransaction(ctx context.Context) error {
	c, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	return c.BeginTransaction(ctx)
}

// Commit 提交当前层级，无事务时无操作
func (s *Session) Commit(ctx context.Context) error {
	if s.tx.depth == 0 {
		return nil
	}
	return s.tx.anchor.Commit(ctx)
}

// RollBack 回滚一层，无事务时无操作
func (s *Session) RollBack(ctx context.Context) error {
	if s.tx.depth == 0 {
		return nil
	}
	return s.tx.anchor.RollBack(ctx)
}

// RollBackTo 见 Connection.RollBackTo
func (s *Session) RollBackTo(ctx context.Context, level int) error {
	if s.tx.depth == 0 {
		return nil
	}
	return s.tx.anchor.RollBackTo(ctx, level)
}

// Transaction 见 Connection.Transaction
func (s *Session) Transaction(ctx context.Context, work TransactionFunc, attempts int) error {
	c, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	return c.Transaction(ctx, work, attempts)
}
