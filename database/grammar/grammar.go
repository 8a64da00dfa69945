// Package grammar 提供各数据库方言的语法描述：日期格式、表前缀、
// 标识符包裹、占位符与保存点语句。
package grammar

import (
	"fmt"
	"strings"
)

// =============================================================================
// 📐 方言语法
// =============================================================================

const defaultDateFormat = "2006-01-02 15:04:05"

// Grammar 是一种 SQL 方言的语法描述。
// 同一实例只归属于一个连接，表前缀的读写不做并发保护。
type Grammar struct {
	name       string
	quote      byte
	dateFormat string
	savepoints bool
	dollar     bool
	prefix     string
}

// MySQL 返回 MySQL 语法（默认方言）
func MySQL() *Grammar {
	return &Grammar{name: "mysql", quote: '`', dateFormat: defaultDateFormat, savepoints: true}
}

// Postgres 返回 PostgreSQL 语法
func Postgres() *Grammar {
	return &Grammar{name: "postgres", quote: '"', dateFormat: defaultDateFormat, savepoints: true, dollar: true}
}

// SQLite 返回 SQLite 语法
func SQLite() *Grammar {
	return &Grammar{name: "sqlite", quote: '"', dateFormat: defaultDateFormat, savepoints: true}
}

// Plain 返回不支持保存点的 MySQL 兼容语法，嵌套事务只在内存中计数
func Plain() *Grammar {
	g := MySQL()
	g.name = "plain"
	g.savepoints = false
	return g
}

// ForDriver 按 database/sql 驱动名选择语法
func ForDriver(driver string) *Grammar {
	switch strings.ToLower(driver) {
	case "postgres", "pgx", "postgresql":
		return Postgres()
	case "sqlite", "sqlite3":
		return SQLite()
	case "plain":
		return Plain()
	default:
		return MySQL()
	}
}

// Name 返回方言名
func (g *Grammar) Name() string { return g.name }

// DateFormat 返回绑定 time.Time 参数时使用的 Go 时间布局
func (g *Grammar) DateFormat() string { return g.dateFormat }

// SetTablePrefix 设置表前缀
func (g *Grammar) SetTablePrefix(prefix string) { g.prefix = prefix }

// TablePrefix 返回表前缀
func (g *Grammar) TablePrefix() string { return g.prefix }

// SupportsSavepoints 方言是否支持保存点
func (g *Grammar) SupportsSavepoints() bool { return g.savepoints }

// CompileSavepoint 生成创建保存点的语句
func (g *Grammar) CompileSavepoint(name string) string {
	return "SAVEPOINT " + name
}

// CompileSavepointRollBack 生成回滚到保存点的语句
func (g *Grammar) CompileSavepointRollBack(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// Placeholder 返回第 n 个（从 1 开始）参数占位符
func (g *Grammar) Placeholder(n int) string {
	if g.dollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// =============================================================================
// 🔤 标识符包裹
// =============================================================================

// WrapTable 为表名加上前缀并包裹
func (g *Grammar) WrapTable(table string) string {
	return g.Wrap(g.prefix + table)
}

// Wrap 包裹一个标识符，支持 "a.b" 与 "col as alias" 形式，"*" 保持原样
func (g *Grammar) Wrap(value string) string {
	value = strings.TrimSpace(value)
	if lower := strings.ToLower(value); strings.Contains(lower, " as ") {
		idx := strings.Index(lower, " as ")
		return g.Wrap(value[:idx]) + " as " + g.wrapSegment(strings.TrimSpace(value[idx+4:]))
	}

	segments := strings.Split(value, ".")
	for i, seg := range segments {
		segments[i] = g.wrapSegment(seg)
	}
	return strings.Join(segments, ".")
}

// Columnize 将列名列表包裹后以逗号连接
func (g *Grammar) Columnize(columns []string) string {
	wrapped := make([]string, len(columns))
	for i, c := range columns {
		wrapped[i] = g.Wrap(c)
	}
	return strings.Join(wrapped, ", ")
}

func (g *Grammar) wrapSegment(seg string) string {
	if seg == "*" {
		return seg
	}
	q := string(g.quote)
	return q + strings.ReplaceAll(seg, q, q+q) + q
}
