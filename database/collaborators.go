package database

import (
	"time"
)

// Grammar 方言语法能力。*grammar.Grammar 满足该接口。
type Grammar interface {
	Name() string
	DateFormat() string
	SetTablePrefix(prefix string)
	TablePrefix() string
	SupportsSavepoints() bool
	CompileSavepoint(name string) string
	CompileSavepointRollBack(name string) string

	Wrap(value string) string
	WrapTable(table string) string
	Columnize(columns []string) string
	Placeholder(n int) string
}

// Row 一行结果，列名到值
type Row map[string]any

// Processor 结果后处理
type Processor interface {
	ProcessSelect(query string, rows []Row) []Row
}

// IdentityProcessor 原样返回
type IdentityProcessor struct{}

// ProcessSelect 实现 Processor
func (IdentityProcessor) ProcessSelect(_ string, rows []Row) []Row { return rows }

// Recorder 连接层指标记录。internal/metrics.Collector 满足该接口。
type Recorder interface {
	RecordQuery(operation, role string, d time.Duration, failed bool)
	RecordCheckout(wait time.Duration)
	RecordEviction()
	RecordReconnect(role string, ok bool)
	RecordTransaction(event string)
	RecordPool(open, idle, inUse int)
}

type nopRecorder struct{}

func (nopRecorder) RecordQuery(string, string, time.Duration, bool) {}
func (nopRecorder) RecordCheckout(time.Duration)                    {}
func (nopRecorder) RecordEviction()                                 {}
func (nopRecorder) RecordReconnect(string, bool)                    {}
func (nopRecorder) RecordTransaction(string)                        {}
func (nopRecorder) RecordPool(int, int, int)                        {}
