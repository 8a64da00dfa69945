// Package query 提供一个最小的 SQL 查询构建器，在 database.Connection 或 database.Session 上执行。
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/dbmux/database"
	"github.com/BaSui01/dbmux/database/grammar"
)

// Executor 执行编译后的 SQL。*database.Connection 与 *database.Session 都满足该接口。
type Executor interface {
	Select(ctx context.Context, query string, bindings []any, useRead bool) ([]database.Row, error)
	Cursor(ctx context.Context, query string, bindings []any, useRead bool) (*database.Cursor, error)
	Insert(ctx context.Context, query string, bindings []any) error
	Update(ctx context.Context, query string, bindings []any) (int64, error)
	Delete(ctx context.Context, query string, bindings []any) (int64, error)
}

type grammarSource interface {
	Grammar() database.Grammar
}

type processorSource interface {
	Processor() database.Processor
}

type whereKind int

const (
	whereBasic whereKind = iota
	whereIn
	whereNull
	whereNever
)

type where struct {
	kind    whereKind
	boolean string
	column  string
	op      string
	values  []any
}

type order struct {
	column    string
	direction string
}

// Builder 链式构建 select/insert/update/delete
type Builder struct {
	grammar   database.Grammar
	processor database.Processor
	exec      Executor

	table    string
	columns  []string
	wheres   []where
	orders   []order
	limit    int
	offset   int
	useWrite bool
}

// New 只用于生成 SQL 的构建器，g 为 nil 时使用 MySQL 语法
func New(g database.Grammar) *Builder {
	if g == nil {
		g = grammar.MySQL()
	}
	return &Builder{grammar: g, processor: database.IdentityProcessor{}}
}

// On 绑定执行器；执行器提供语法或结果处理器时一并采用
func On(exec Executor) *Builder {
	var g database.Grammar
	if gs, ok := exec.(grammarSource); ok {
		g = gs.Grammar()
	}
	b := New(g)
	if ps, ok := exec.(processorSource); ok {
		b.processor = ps.Processor()
	}
	b.exec = exec
	return b
}

// Table 设置表名（会加上表前缀）
func (b *Builder) Table(table string) *Builder {
	b.table = table
	return b
}

// Select 设置列，未设置时为 *
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// Where column op value，以 and 连接
func (b *Builder) Where(column, op string, value any) *Builder {
	return b.addWhere(where{kind: whereBasic, boolean: "and", column: column, op: op, values: []any{value}})
}

// OrWhere column op value，以 or 连接
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	return b.addWhere(where{kind: whereBasic, boolean: "or", column: column, op: op, values: []any{value}})
}

// WhereIn column in (...)；空列表永远不匹配
func (b *Builder) WhereIn(column string, values []any) *Builder {
	if len(values) == 0 {
		return b.addWhere(where{kind: whereNever, boolean: "and"})
	}
	return b.addWhere(where{kind: whereIn, boolean: "and", column: column, values: values})
}

// WhereNull column is null
func (b *Builder) WhereNull(column string) *Builder {
	return b.addWhere(where{kind: whereNull, boolean: "and", column: column})
}

func (b *Builder) addWhere(w where) *Builder {
	b.wheres = append(b.wheres, w)
	return b
}

// OrderBy 排序，direction 只接受 asc/desc
func (b *Builder) OrderBy(column, direction string) *Builder {
	direction = strings.ToLower(direction)
	if direction != "desc" {
		direction = "asc"
	}
	b.orders = append(b.orders, order{column: column, direction: direction})
	return b
}

// Limit 限制行数，0 表示不限制
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset 跳过行数
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// UseWritePdo 强制查询走写句柄
func (b *Builder) UseWritePdo() *Builder {
	b.useWrite = true
	return b
}

// =============================================================================
// 🧱 编译
// =============================================================================

// ToSQL 编译 select 语句
func (b *Builder) ToSQL() (string, []any) {
	c := b.compiler()

	cols := "*"
	if len(b.columns) > 0 {
		cols = b.grammar.Columnize(b.columns)
	}
	var sb strings.Builder
	sb.WriteString("select " + cols + " from " + b.grammar.WrapTable(b.table))
	sb.WriteString(c.wheres(b.wheres))

	if len(b.orders) > 0 {
		parts := make([]string, len(b.orders))
		for i, o := range b.orders {
			parts[i] = b.grammar.Wrap(o.column) + " " + o.direction
		}
		sb.WriteString(" order by " + strings.Join(parts, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" limit " + strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(" offset " + strconv.Itoa(b.offset))
	}
	return sb.String(), c.bindings
}

func (b *Builder) compileInsert(values map[string]any) (string, []any) {
	c := b.compiler()
	keys := sortedKeys(values)

	marks := make([]string, len(keys))
	for i, k := range keys {
		marks[i] = c.bind(values[k])
	}
	return "insert into " + b.grammar.WrapTable(b.table) +
		" (" + b.grammar.Columnize(keys) + ") values (" + strings.Join(marks, ", ") + ")", c.bindings
}

func (b *Builder) compileUpdate(values map[string]any) (string, []any) {
	c := b.compiler()
	keys := sortedKeys(values)

	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = b.grammar.Wrap(k) + " = " + c.bind(values[k])
	}
	return "update " + b.grammar.WrapTable(b.table) + " set " + strings.Join(sets, ", ") + c.wheres(b.wheres), c.bindings
}

func (b *Builder) compileDelete() (string, []any) {
	c := b.compiler()
	return "delete from " + b.grammar.WrapTable(b.table) + c.wheres(b.wheres), c.bindings
}

// compiler 按语法生成占位符并收集绑定值
type compiler struct {
	grammar  database.Grammar
	bindings []any
}

func (b *Builder) compiler() *compiler {
	return &compiler{grammar: b.grammar}
}

func (c *compiler) bind(v any) string {
	c.bindings = append(c.bindings, v)
	return c.grammar.Placeholder(len(c.bindings))
}

func (c *compiler) wheres(ws []where) string {
	if len(ws) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, w := range ws {
		if i == 0 {
			sb.WriteString(" where ")
		} else {
			sb.WriteString(" " + w.boolean + " ")
		}
		switch w.kind {
		case whereBasic:
			sb.WriteString(c.grammar.Wrap(w.column) + " " + w.op + " " + c.bind(w.values[0]))
		case whereIn:
			marks := make([]string, len(w.values))
			for j, v := range w.values {
				marks[j] = c.bind(v)
			}
			sb.WriteString(c.grammar.Wrap(w.column) + " in (" + strings.Join(marks, ", ") + ")")
		case whereNull:
			sb.WriteString(c.grammar.Wrap(w.column) + " is null")
		case whereNever:
			sb.WriteString("0 = 1")
		}
	}
	return sb.String()
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// ▶️ 执行
// =============================================================================

func (b *Builder) executor() (Executor, error) {
	if b.exec == nil {
		return nil, fmt.Errorf("query: builder has no executor, use On")
	}
	return b.exec, nil
}

// Get 执行查询，结果经过结果处理器
func (b *Builder) Get(ctx context.Context) ([]database.Row, error) {
	exec, err := b.executor()
	if err != nil {
		return nil, err
	}
	query, bindings := b.ToSQL()
	rows, err := exec.Select(ctx, query, bindings, !b.useWrite)
	if err != nil {
		return nil, err
	}
	return b.processor.ProcessSelect(query, rows), nil
}

// First 取第一行，无结果时返回 nil
func (b *Builder) First(ctx context.Context) (database.Row, error) {
	rows, err := b.Limit(1).Get(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Count 统计行数
func (b *Builder) Count(ctx context.Context) (int64, error) {
	saved := b.columns
	b.columns = nil
	query, bindings := b.ToSQL()
	b.columns = saved
	query = strings.Replace(query, "select * from", "select count(*) as "+b.grammar.Wrap("aggregate")+" from", 1)

	exec, err := b.executor()
	if err != nil {
		return 0, err
	}
	rows, err := exec.Select(ctx, query, bindings, !b.useWrite)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(fmt.Sprint(rows[0]["aggregate"]), 10, 64)
}

// Cursor 惰性执行查询
func (b *Builder) Cursor(ctx context.Context) (*database.Cursor, error) {
	exec, err := b.executor()
	if err != nil {
		return nil, err
	}
	query, bindings := b.ToSQL()
	return exec.Cursor(ctx, query, bindings, !b.useWrite)
}

// Insert 插入一行，列按名称排序
func (b *Builder) Insert(ctx context.Context, values map[string]any) error {
	exec, err := b.executor()
	if err != nil {
		return err
	}
	query, bindings := b.compileInsert(values)
	return exec.Insert(ctx, query, bindings)
}

// Update 返回受影响行数
func (b *Builder) Update(ctx context.Context, values map[string]any) (int64, error) {
	exec, err := b.executor()
	if err != nil {
		return 0, err
	}
	query, bindings := b.compileUpdate(values)
	return exec.Update(ctx, query, bindings)
}

// Delete 返回受影响行数
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	exec, err := b.executor()
	if err != nil {
		return 0, err
	}
	query, bindings := b.compileDelete()
	return exec.Delete(ctx, query, bindings)
}
