package database

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// 📣 事件
// =============================================================================

// 事件名
const (
	EventTransactionBeginning  = "transaction.beginning"
	EventTransactionCommitted  = "transaction.committed"
	EventTransactionRolledBack = "transaction.rolled_back"
	EventQueryExecuted         = "query.executed"
)

// Event 连接层发出的通知
type Event interface {
	Name() string
}

// TransactionBeginning 开启事务（含保存点）
type TransactionBeginning struct {
	ConnectionID string
	Level        int
}

func (TransactionBeginning) Name() string { return EventTransactionBeginning }

// TransactionCommitted 提交（含仅递减层级的内层提交）
type TransactionCommitted struct {
	ConnectionID string
	Level        int
}

func (TransactionCommitted) Name() string { return EventTransactionCommitted }

// TransactionRolledBack 回滚到某一层级
type TransactionRolledBack struct {
	ConnectionID string
	Level        int
}

func (TransactionRolledBack) Name() string { return EventTransactionRolledBack }

// QueryExecuted 一次成功的物理调用
type QueryExecuted struct {
	ConnectionID string
	Query        string
	Role         Role
	Duration     time.Duration
}

func (QueryExecuted) Name() string { return EventQueryExecuted }

// EventDispatcher 分发事件，调用方不等待结果
type EventDispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

// NopDispatcher 丢弃所有事件
type NopDispatcher struct{}

// Dispatch 实现 EventDispatcher
func (NopDispatcher) Dispatch(context.Context, Event) {}

// Listener 事件监听器
type Listener func(ctx context.Context, event Event)

// Dispatcher 按事件名注册监听器。由调用方持有并传入连接池，不使用全局注册表。
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	wildcard  []Listener
}

// NewDispatcher 创建空的分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]Listener)}
}

// Listen 监听指定事件
func (d *Dispatcher) Listen(name string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], l)
}

// ListenAll 监听所有事件
func (d *Dispatcher) ListenAll(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wildcard = append(d.wildcard, l)
}

// Dispatch 同步调用监听器，注册顺序即调用顺序
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	d.mu.RLock()
	named := d.listeners[event.Name()]
	all := d.wildcard
	d.mu.RUnlock()

	for _, l := range named {
		l(ctx, event)
	}
	for _, l := range all {
		l(ctx, event)
	}
}
