package database

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"github.com/BaSui01/dbmux/types"
)

// Cursor 只进、不可重启的惰性结果集，一次取一行。
// 持有打开的语句与结果集直到 Close；Close 之后连接才归还连接池。
type Cursor struct {
	conn  *Connection
	sess  *Session
	query string
	mode  FetchMode

	stmt *sql.Stmt
	rows *sql.Rows
	cols []string

	row    Row
	err    error
	closed bool
}

// Cursor 与 Select 相同的准备与执行，但逐行读取
func (c *Connection) Cursor(ctx context.Context, query string, bindings []any, useRead bool) (*Cursor, error) {
	cur := &Cursor{conn: c, query: query, mode: c.descriptor.FetchMode()}

	err := c.run(ctx, "cursor", query, useRead, false, func(ctx context.Context, h *Handle) error {
		stmt, err := h.executor().PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, c.bind(bindings)...)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		cols, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			_ = stmt.Close()
			return err
		}
		cur.stmt, cur.rows, cur.cols = stmt, rows, cols
		return nil
	})
	if err != nil {
		return nil, err
	}

	cur.sess = c.session
	if c.cursors == nil {
		c.cursors = make(map[*Cursor]struct{})
	}
	c.cursors[cur] = struct{}{}
	return cur, nil
}

// Next 前进一行；结果集耗尽或出错时自动关闭游标
func (cur *Cursor) Next() bool {
	if cur.closed {
		return false
	}
	if !cur.rows.Next() {
		if err := cur.rows.Err(); err != nil {
			cur.err = types.NewQueryFailure(cur.query, err)
		}
		_ = cur.Close()
		return false
	}

	row, err := scanRow(cur.rows, cur.cols, cur.mode)
	if err != nil {
		cur.err = types.NewQueryFailure(cur.query, err)
		_ = cur.Close()
		return false
	}
	cur.row = row
	return true
}

// Row 当前行
func (cur *Cursor) Row() Row { return cur.row }

// Err 迭代过程中的错误
func (cur *Cursor) Err() error { return cur.err }

// Close 释放结果集与语句，然后非强制归还连接。可重复调用。
// 连接已不属于打开游标的会话时只释放语句，不再触碰连接状态。
func (cur *Cursor) Close() error {
	if cur.closed {
		return nil
	}
	err := cur.finish()
	if cur.sess != nil && cur.conn.session == cur.sess {
		cur.conn.active = RoleNone
		cur.conn.Release(false)
	}
	return err
}

// finish 关闭结果集与语句并从连接上注销，不归还连接
func (cur *Cursor) finish() error {
	cur.closed = true
	cur.row = nil
	delete(cur.conn.cursors, cur)
	return errors.Join(cur.rows.Close(), cur.stmt.Close())
}

// closeCursors 关闭连接上仍打开的游标；连接被强制归还或断开前调用
func (c *Connection) closeCursors() error {
	var errs []error
	for cur := range c.cursors {
		errs = append(errs, cur.finish())
	}
	return errors.Join(errs...)
}

// All 以 range-over-func 形式迭代；提前 break 也会关闭游标
func (cur *Cursor) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		defer cur.Close()
		for cur.Next() {
			if !yield(cur.row, nil) {
				return
			}
		}
		if cur.err != nil {
			yield(nil, cur.err)
		}
	}
}
