package database

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/types"
)

// =============================================================================
// 🔄 事务
// =============================================================================

const (
	beginSQL    = "BEGIN"
	commitSQL   = "COMMIT"
	rollbackSQL = "ROLLBACK"
)

// TxState 一个逻辑请求的事务状态：嵌套层级与开启最外层事务的锚点连接。
// 不变式：depth > 0 当且仅当 anchor != nil。
type TxState struct {
	depth  int
	anchor *Connection
}

// Depth 当前嵌套层级
func (t TxState) Depth() int { return t.depth }

// Anchor 锚点连接，层级为 0 时为 nil
func (t TxState) Anchor() *Connection { return t.anchor }

func (t *TxState) reset() {
	t.depth = 0
	t.anchor = nil
}

func savepointName(level int) string {
	return "trans" + strconv.Itoa(level)
}

// BeginTransaction 层级为 0 时在写句柄上开启物理事务并成为锚点；
// 更深层级在方言支持时于锚点上创建保存点 trans<新层级>。
func (c *Connection) BeginTransaction(ctx context.Context) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	tx := &c.session.tx

	if tx.depth == 0 {
		if err := c.beginPhysical(ctx); err != nil {
			return err
		}
		tx.anchor = c
	} else if anchor := tx.anchor; anchor.grammar.SupportsSavepoints() {
		query := anchor.grammar.CompileSavepoint(savepointName(tx.depth + 1))
		if err := anchor.execOnWriter(ctx, "savepoint", query); err != nil {
			return types.NewQueryFailure(query, err)
		}
	}

	tx.depth++
	c.recorder.RecordTransaction("begin")
	c.events.Dispatch(ctx, TransactionBeginning{ConnectionID: tx.anchor.id, Level: tx.depth})
	return nil
}

// beginPhysical 开启物理事务；策略允许时重连并重试一次，重连失败则驱逐
func (c *Connection) beginPhysical(ctx context.Context) error {
	c.active = RoleWrite
	begin := func(ctx context.Context) error {
		h, err := c.handle(ctx, RoleWrite)
		if err != nil {
			return err
		}
		return h.begin(ctx)
	}

	_, err := c.instrument(ctx, "begin", beginSQL, RoleWrite, begin)
	if err != nil && c.reconnect.ShouldReconnect(err) {
		if !c.Reconnect(ctx) {
			c.logger.Warn("begin failed and reconnect failed", zap.Error(err))
			c.pool.evict(c)
			return types.NewQueryFailure(beginSQL, err)
		}
		_, err = c.instrument(ctx, "begin", beginSQL, RoleWrite, begin)
	}
	c.active = RoleNone
	if err != nil {
		c.logger.Warn("begin transaction failed", zap.Error(err))
		c.Release(false)
		return types.NewQueryFailure(beginSQL, err)
	}
	return nil
}

func (c *Connection) execOnWriter(ctx context.Context, op, query string) error {
	_, err := c.instrument(ctx, op, query, RoleWrite, func(ctx context.Context) error {
		_, err := c.writeHandle.executor().ExecContext(ctx, query)
		return err
	})
	return err
}

// Commit 层级为 0 时无操作；最外层提交物理事务、清空状态并强制归还锚点；
// 内层只递减层级，保存点不单独提交。
func (c *Connection) Commit(ctx context.Context) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	tx := &c.session.tx

	switch {
	case tx.depth == 0:
		return nil
	case tx.depth == 1:
		anchor := tx.anchor
		_, err := anchor.instrument(ctx, "commit", commitSQL, RoleWrite, func(context.Context) error {
			return anchor.writeHandle.commit()
		})
		tx.reset()
		if err != nil {
			anchor.logger.Warn("commit failed", zap.Error(err))
			anchor.Release(true)
			return types.NewQueryFailure(commitSQL, err)
		}
		c.recorder.RecordTransaction("commit")
		c.events.Dispatch(ctx, TransactionCommitted{ConnectionID: anchor.id, Level: 0})
		anchor.Release(true)
		return nil
	default:
		tx.depth--
		c.recorder.RecordTransaction("commit")
		c.events.Dispatch(ctx, TransactionCommitted{ConnectionID: tx.anchor.id, Level: tx.depth})
		return nil
	}
}

// RollBack 回滚一层
func (c *Connection) RollBack(ctx context.Context) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	return c.RollBackTo(ctx, c.session.tx.depth-1)
}

// RollBackTo 回滚到指定层级。超出 [0, depth) 的目标被静默忽略。
// 目标为 0 时回滚物理事务并强制归还锚点；否则在方言支持时回滚到保存点 trans<目标+1>。
func (c *Connection) RollBackTo(ctx context.Context, level int) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	tx := &c.session.tx
	if level < 0 || level >= tx.depth {
		return nil
	}
	anchor := tx.anchor

	if level == 0 {
		_, err := anchor.instrument(ctx, "rollback", rollbackSQL, RoleWrite, func(context.Context) error {
			return anchor.writeHandle.rollback()
		})
		tx.reset()
		if err != nil {
			anchor.logger.Warn("rollback failed", zap.Error(err))
			anchor.Release(true)
			return types.NewQueryFailure(rollbackSQL, err)
		}
		c.recorder.RecordTransaction("rollback")
		c.events.Dispatch(ctx, TransactionRolledBack{ConnectionID: anchor.id, Level: 0})
		anchor.Release(true)
		return nil
	}

	if anchor.grammar.SupportsSavepoints() {
		query := anchor.grammar.CompileSavepointRollBack(savepointName(level + 1))
		if err := anchor.execOnWriter(ctx, "rollback", query); err != nil {
			return types.NewQueryFailure(query, err)
		}
	}
	tx.depth = level
	c.recorder.RecordTransaction("rollback")
	c.events.Dispatch(ctx, TransactionRolledBack{ConnectionID: anchor.id, Level: level})
	return nil
}

// TransactionFunc 事务体
type TransactionFunc func(ctx context.Context, conn *Connection) error

// Transaction 执行 begin/work/commit 循环，最多 attempts 次。
//
// work 失败时总是回滚一层并进入下一次尝试，只有最后一次的错误返回给调用方；
// 回滚本身失败时立即返回 work 错误与回滚错误的合并。
// 第一次尝试使用当前连接，之后通过会话重新获取（最外层回滚会归还连接）。
// work panic 时先回滚再继续 panic。
func (c *Connection) Transaction(ctx context.Context, work TransactionFunc, attempts int) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	if attempts < 1 {
		attempts = 1
	}

	sess := c.session
	conn := c
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			var err error
			if conn, err = sess.Connection(ctx); err != nil {
				return err
			}
		}

		if err := conn.BeginTransaction(ctx); err != nil {
			return err
		}

		workErr := runWork(ctx, conn, work)
		if workErr == nil {
			return conn.Commit(ctx)
		}

		if rbErr := conn.RollBack(ctx); rbErr != nil {
			return errors.Join(workErr, rbErr)
		}
		lastErr = workErr

		c.logger.Debug("transaction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(workErr),
		)
	}
	return lastErr
}

func runWork(ctx context.Context, conn *Connection, work TransactionFunc) error {
	defer func() {
		if r := recover(); r != nil {
			_ = conn.RollBack(ctx)
			panic(r)
		}
	}()
	return work(ctx, conn)
}
