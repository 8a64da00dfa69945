package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/types"
)

// =============================================================================
// 🔗 逻辑连接
// =============================================================================

// Role 物理句柄角色
type Role int

const (
	RoleNone Role = iota
	RoleWrite
	RoleRead
)

// String 返回角色名，用于日志与指标标签
func (r Role) String() string {
	switch r {
	case RoleWrite:
		return "write"
	case RoleRead:
		return "read"
	default:
		return "none"
	}
}

// ErrConnectionReleased 连接已归还连接池后继续使用
var ErrConnectionReleased = types.NewError(types.ErrConnectionRelease, "connection has been released to the pool")

// Connection 连接池中的逻辑连接。
//
// 持有一个写句柄和一个可选的读句柄，二者都在首次使用时才建立。
// 连接在检出时绑定到请求的 Session，事务状态通过 Session 显式共享，
// 归还后不能再使用。一个 Connection 同一时刻只属于一个调用方，不可并发使用。
type Connection struct {
	id         string
	pool       *Pool
	descriptor Descriptor
	grammar    Grammar
	processor  Processor

	writeHandle *Handle
	readHandle  *Handle
	active      Role
	cursors     map[*Cursor]struct{}

	session *Session

	reconnect ReconnectPolicy
	events    EventDispatcher
	recorder  Recorder
	tracer    trace.Tracer
	logger    *zap.Logger

	createdAt  time.Time
	lastUsedAt time.Time
}

// newConnection 绑定连接池与描述，安装默认语法与结果处理器，不做任何物理 I/O
func newConnection(pool *Pool, descriptor Descriptor) *Connection {
	id := uuid.NewString()
	g := pool.Grammar()

	now := time.Now()
	return &Connection{
		id:         id,
		pool:       pool,
		descriptor: descriptor,
		grammar:    g,
		processor:  IdentityProcessor{},
		reconnect:  pool.reconnect,
		events:     pool.events,
		recorder:   pool.recorder,
		tracer:     pool.tracer,
		logger:     pool.logger.With(zap.String("connection_id", id)),
		createdAt:  now,
		lastUsedAt: now,
	}
}

// ID 连接槽标识
func (c *Connection) ID() string { return c.id }

// Grammar 当前语法
func (c *Connection) Grammar() Grammar { return c.grammar }

// SetGrammar 替换语法，保留表前缀
func (c *Connection) SetGrammar(g Grammar) {
	g.SetTablePrefix(c.descriptor.Prefix())
	c.grammar = g
}

// Processor 当前结果处理器
func (c *Connection) Processor() Processor { return c.processor }

// SetProcessor 替换结果处理器
func (c *Connection) SetProcessor(p Processor) { c.processor = p }

// Descriptor 数据库描述
func (c *Connection) Descriptor() Descriptor { return c.descriptor }

// TablePrefix 表前缀
func (c *Connection) TablePrefix() string { return c.grammar.TablePrefix() }

// SetReconnectPolicy 替换重连策略
func (c *Connection) SetReconnectPolicy(p ReconnectPolicy) {
	if p == nil {
		p = NeverReconnect{}
	}
	c.reconnect = p
}

// Session 当前绑定的会话，已归还时为 nil
func (c *Connection) Session() *Session { return c.session }

// TransactionLevel 当前请求的事务嵌套层级
func (c *Connection) TransactionLevel() int {
	if c.session == nil {
		return 0
	}
	return c.session.tx.depth
}

// =============================================================================
// 📖 查询
// =============================================================================

// Select 执行查询并取回全部行。useRead 为 true 且不在事务中、存在读目标时走读句柄。
func (c *Connection) Select(ctx context.Context, query string, bindings []any, useRead bool) ([]Row, error) {
	var rows []Row
	err := c.run(ctx, "select", query, useRead, true, func(ctx context.Context, h *Handle) error {
		stmt, err := h.executor().PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		rs, err := stmt.QueryContext(ctx, c.bind(bindings)...)
		if err != nil {
			return err
		}
		defer rs.Close()

		rows, err = fetchAll(rs, c.descriptor.FetchMode())
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectOne 只返回第一行，无结果时返回 nil
func (c *Connection) SelectOne(ctx context.Context, query string, bindings []any, useRead bool) (Row, error) {
	rows, err := c.Select(ctx, query, bindings, useRead)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// =============================================================================
// ✍️ 写入
// =============================================================================

// Insert 在写句柄上执行插入
func (c *Connection) Insert(ctx context.Context, query string, bindings []any) error {
	return c.Statement(ctx, query, bindings)
}

// Statement 在写句柄上执行任意语句
func (c *Connection) Statement(ctx context.Context, query string, bindings []any) error {
	_, err := c.affecting(ctx, "statement", query, bindings)
	return err
}

// Update 返回受影响行数
func (c *Connection) Update(ctx context.Context, query string, bindings []any) (int64, error) {
	return c.affecting(ctx, "update", query, bindings)
}

// Delete 返回受影响行数
func (c *Connection) Delete(ctx context.Context, query string, bindings []any) (int64, error) {
	return c.affecting(ctx, "delete", query, bindings)
}

// Unprepared 不绑定参数直接执行原始 SQL
func (c *Connection) Unprepared(ctx context.Context, query string) error {
	return c.run(ctx, "unprepared", query, false, true, func(ctx context.Context, h *Handle) error {
		_, err := h.executor().ExecContext(ctx, query)
		return err
	})
}

func (c *Connection) affecting(ctx context.Context, op, query string, bindings []any) (int64, error) {
	var affected int64
	err := c.run(ctx, op, query, false, true, func(ctx context.Context, h *Handle) error {
		stmt, err := h.executor().PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		res, err := stmt.ExecContext(ctx, c.bind(bindings)...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (c *Connection) bind(bindings []any) []any {
	return bindValues(bindings, c.grammar.DateFormat())
}

// =============================================================================
// 🛟 失败恢复
// =============================================================================

type physicalCall func(ctx context.Context, h *Handle) error

// run 包装一次物理调用：
// 成功后重置活动角色并归还连接（release 为 false 时由调用方负责归还）；
// 失败时若是首次尝试、不在事务中且策略允许，则重连同一角色并重试一次；
// 重连失败则驱逐该连接槽，未尝试重连则正常归还。
func (c *Connection) run(ctx context.Context, op, query string, useRead, release bool, call physicalCall) error {
	if c.session == nil {
		return ErrConnectionReleased
	}
	return c.runAttempt(ctx, op, query, useRead, release, call, true)
}

func (c *Connection) runAttempt(ctx context.Context, op, query string, useRead, release bool, call physicalCall, first bool) error {
	role := c.roleFor(useRead)
	c.active = role

	d, err := c.instrument(ctx, op, query, role, func(ctx context.Context) error {
		h, err := c.handle(ctx, role)
		if err != nil {
			return err
		}
		return call(ctx, h)
	})
	if err == nil {
		c.events.Dispatch(ctx, QueryExecuted{ConnectionID: c.id, Query: query, Role: role, Duration: d})
		if release {
			c.active = RoleNone
			c.Release(false)
		}
		return nil
	}

	attempted := false
	if first && c.session.tx.depth == 0 && c.reconnect.ShouldReconnect(err) {
		attempted = true
		if c.Reconnect(ctx) {
			c.logger.Info("reconnected after failure, retrying",
				zap.String("operation", op),
				zap.String("role", role.String()),
				zap.Error(err),
			)
			return c.runAttempt(ctx, op, query, useRead, release, call, false)
		}
	}

	c.logger.Warn("query failed",
		zap.String("operation", op),
		zap.String("role", role.String()),
		zap.Bool("reconnect_attempted", attempted),
		zap.Error(err),
	)
	if attempted {
		c.pool.evict(c)
	} else {
		c.active = RoleNone
		c.Release(false)
	}
	return types.NewQueryFailure(query, err)
}

// roleFor 事务中或没有读目标时一律走写句柄
func (c *Connection) roleFor(useRead bool) Role {
	if !useRead || c.TransactionLevel() > 0 {
		return RoleWrite
	}
	if c.readHandle != nil || c.descriptor.HasReadTargets() {
		return RoleRead
	}
	return RoleWrite
}

// handle 返回角色对应的句柄，必要时按目标顺序建立
func (c *Connection) handle(ctx context.Context, role Role) (*Handle, error) {
	if role == RoleRead {
		if c.readHandle == nil {
			h, err := c.connect(ctx, c.descriptor.ReadTargets())
			if err != nil {
				return nil, err
			}
			c.readHandle = h
		}
		return c.readHandle, nil
	}

	if c.writeHandle == nil {
		h, err := c.connect(ctx, c.descriptor.WriteTargets())
		if err != nil {
			return nil, err
		}
		c.writeHandle = h
	}
	return c.writeHandle, nil
}

func (c *Connection) connect(ctx context.Context, targets []Target) (*Handle, error) {
	if len(targets) == 0 {
		return nil, types.NewError(types.ErrNoTargets, "no targets configured")
	}

	var errs []error
	for _, t := range targets {
		h, err := c.descriptor.Connector().Connect(ctx, t)
		if err == nil {
			return h, nil
		}
		errs = append(errs, err)
		c.logger.Warn("connect failed", zap.String("target", t.Name), zap.Error(err))
	}
	return nil, types.NewError(types.ErrConnectFailed, "all targets failed").
		WithCause(errors.Join(errs...)).
		WithRetryable(true)
}

// instrument 记录一次物理调用的 span、耗时与失败
func (c *Connection) instrument(ctx context.Context, op, query string, role Role, fn func(ctx context.Context) error) (time.Duration, error) {
	ctx, span := c.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", c.grammar.Name()),
			attribute.String("db.statement", query),
			attribute.String("db.operation", op),
			attribute.String("db.role", role.String()),
			attribute.String("db.connection_id", c.id),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	c.lastUsedAt = time.Now()
	c.recorder.RecordQuery(op, role.String(), d, err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, err
}

// =============================================================================
// 🔁 重连与归还
// =============================================================================

// Reconnect 重建最近活动角色的句柄（未标记时视为写），目标取描述当前列表的第一个。
// 写句柄上存在物理事务时拒绝重连。从不返回错误，失败只体现在返回值上。
func (c *Connection) Reconnect(ctx context.Context) bool {
	role := c.active
	if role == RoleNone {
		role = RoleWrite
	}

	var targets []Target
	if role == RoleRead {
		targets = c.descriptor.ReadTargets()
	} else {
		if c.writeHandle != nil && c.writeHandle.InTransaction() {
			c.recorder.RecordReconnect(role.String(), false)
			return false
		}
		targets = c.descriptor.WriteTargets()
	}
	if len(targets) == 0 {
		c.recorder.RecordReconnect(role.String(), false)
		return false
	}

	h, err := c.descriptor.Connector().Connect(ctx, targets[0])
	if err != nil {
		c.logger.Warn("reconnect failed",
			zap.String("role", role.String()),
			zap.String("target", targets[0].Name),
			zap.Error(err),
		)
		c.recorder.RecordReconnect(role.String(), false)
		return false
	}

	var old *Handle
	if role == RoleRead {
		old, c.readHandle = c.readHandle, h
	} else {
		old, c.writeHandle = c.writeHandle, h
	}
	if old != nil {
		_ = old.Close()
	}
	c.recorder.RecordReconnect(role.String(), true)
	return true
}

// Release 归还连接。非强制归还时，作为当前事务锚点的连接保持检出。
func (c *Connection) Release(force bool) {
	sess := c.session
	if sess == nil {
		return
	}
	if !force && sess.tx.depth > 0 && sess.tx.anchor == c {
		return
	}
	c.pool.put(c)
}

// disconnect 关闭物理句柄，连接槽本身保留
func (c *Connection) disconnect() error {
	errs := []error{c.closeCursors()}
	if c.writeHandle != nil {
		errs = append(errs, c.writeHandle.Close())
		c.writeHandle = nil
	}
	if c.readHandle != nil {
		errs = append(errs, c.readHandle.Close())
		c.readHandle = nil
	}
	c.active = RoleNone
	return errors.Join(errs...)
}

// =============================================================================
// 📦 结果集
// =============================================================================

func fetchAll(rs *sql.Rows, mode FetchMode) ([]Row, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0)
	for rs.Next() {
		row, err := scanRow(rs, cols, mode)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func scanRow(rs *sql.Rows, cols []string, mode FetchMode) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rs.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(cols))
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok && mode == FetchAssoc {
			v = string(b)
		}
		row[col] = v
	}
	return row, nil
}
