package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/dbmux/config"
	"github.com/BaSui01/dbmux/database/grammar"
	"github.com/BaSui01/dbmux/internal/ctxkeys"
	"github.com/BaSui01/dbmux/types"
)

// =============================================================================
// 🗄️ 连接池
// =============================================================================

var (
	// ErrPoolClosed 连接池已关闭
	ErrPoolClosed = types.NewError(types.ErrPoolClosed, "connection pool is closed")
	// ErrPoolExhausted 等待空闲连接超时
	ErrPoolExhausted = types.NewError(types.ErrPoolExhausted, "connection pool exhausted")
)

const tracerName = "github.com/BaSui01/dbmux/database"

// Pool 有界的逻辑连接池。
//
// 检出由信号量限制在 MaxConnections 以内，空闲连接按后进先出复用。
// 被驱逐的连接槽直接丢弃，容量在下一次检出时惰性补建。
type Pool struct {
	descriptor Descriptor
	config     config.PoolConfig
	sem        *semaphore.Weighted

	mu      sync.Mutex
	free    []*Connection
	numOpen int
	closed  bool

	logger         *zap.Logger
	recorder       Recorder
	events         EventDispatcher
	reconnect      ReconnectPolicy
	tracer         trace.Tracer
	grammarFactory func(driver string) Grammar

	checkouts    atomic.Int64
	waitDuration atomic.Int64
	evictions    atomic.Int64
	idleClosed   atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option 配置连接池
type Option func(*Pool)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(p *Pool) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithEvents 设置事件分发器
func WithEvents(d EventDispatcher) Option {
	return func(p *Pool) {
		if d != nil {
			p.events = d
		}
	}
}

// WithReconnectPolicy 设置新建连接的默认重连策略
func WithReconnectPolicy(policy ReconnectPolicy) Option {
	return func(p *Pool) {
		if policy != nil {
			p.reconnect = policy
		}
	}
}

// WithTracerProvider 设置 OpenTelemetry TracerProvider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pool) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithGrammarFactory 按驱动名创建语法，默认 grammar.ForDriver
func WithGrammarFactory(f func(driver string) Grammar) Option {
	return func(p *Pool) {
		if f != nil {
			p.grammarFactory = f
		}
	}
}

// WithGrammar 固定语法名（mysql/postgres/sqlite/plain），忽略驱动名
func WithGrammar(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.grammarFactory = func(string) Grammar { return grammar.ForDriver(name) }
		}
	}
}

// NewPool 创建连接池，预建 MinConnections 个连接槽（不做物理 I/O）
func NewPool(descriptor Descriptor, cfg config.PoolConfig, opts ...Option) (*Pool, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("descriptor cannot be nil")
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MinConnections > cfg.MaxConnections {
		return nil, fmt.Errorf("min_connections (%d) exceeds max_connections (%d)", cfg.MinConnections, cfg.MaxConnections)
	}

	p := &Pool{
		descriptor:     descriptor,
		config:         cfg,
		sem:            semaphore.NewWeighted(int64(cfg.MaxConnections)),
		logger:         zap.NewNop(),
		recorder:       nopRecorder{},
		events:         NopDispatcher{},
		reconnect:      NeverReconnect{},
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
		grammarFactory: func(driver string) Grammar { return grammar.ForDriver(driver) },
		stopCh:         make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With(zap.String("component", "db_pool"))

	for i := 0; i < cfg.MinConnections; i++ {
		p.free = append(p.free, newConnection(p, descriptor))
		p.numOpen++
	}

	if cfg.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.maintenanceLoop()
	}

	p.logger.Info("connection pool initialized",
		zap.Int("min_connections", cfg.MinConnections),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Int("write_targets", len(descriptor.WriteTargets())),
		zap.Bool("read_split", descriptor.HasReadTargets()),
	)
	return p, nil
}

// Grammar 返回按写目标驱动新建的语法实例，已设置表前缀
func (p *Pool) Grammar() Grammar {
	driver := ""
	if writes := p.descriptor.WriteTargets(); len(writes) > 0 {
		driver = writes[0].Driver
	}
	g := p.grammarFactory(driver)
	g.SetTablePrefix(p.descriptor.Prefix())
	return g
}

// NewSession 为一个逻辑请求创建会话。ctx 中带请求 ID 时沿用，否则生成新的。
func (p *Pool) NewSession(ctx context.Context) *Session {
	id, ok := ctxkeys.RequestID(ctx)
	if !ok {
		id = uuid.NewString()
	}
	logger := p.logger.With(zap.String("session_id", id))
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	return &Session{
		id:     id,
		pool:   p,
		held:   make(map[*Connection]struct{}),
		logger: logger,
	}
}

// get 检出一个连接并绑定到会话
func (p *Pool) get(ctx context.Context, sess *Session) (*Connection, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	waitCtx := ctx
	if p.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.config.WaitTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("wait for connection timed out", zap.Duration("wait_timeout", p.config.WaitTimeout))
		return nil, ErrPoolExhausted
	}
	wait := time.Since(start)
	p.checkouts.Add(1)
	p.waitDuration.Add(int64(wait))
	p.recorder.RecordCheckout(wait)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	var c *Connection
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		c = newConnection(p, p.descriptor)
		p.numOpen++
	}
	c.session = sess
	c.reconnect = p.reconnect
	p.mu.Unlock()

	sess.held[c] = struct{}{}
	return c, nil
}

// put 将连接放回空闲列表；连接池已关闭时直接关闭
func (p *Pool) put(c *Connection) {
	if c.session != nil {
		delete(c.session.held, c)
	}

	p.mu.Lock()
	c.session = nil
	c.active = RoleNone
	if p.closed {
		p.numOpen--
		p.mu.Unlock()
		_ = c.disconnect()
		p.sem.Release(1)
		return
	}
	p.free = append(p.free, c)
	p.mu.Unlock()

	p.sem.Release(1)
}

// evict 永久丢弃一个已检出的连接槽
func (p *Pool) evict(c *Connection) {
	if c.session == nil {
		return
	}
	delete(c.session.held, c)

	p.mu.Lock()
	c.session = nil
	p.numOpen--
	p.mu.Unlock()

	if err := c.disconnect(); err != nil {
		p.logger.Debug("close evicted handles", zap.Error(err))
	}
	p.evictions.Add(1)
	p.recorder.RecordEviction()
	p.logger.Warn("connection evicted", zap.String("connection_id", c.id))

	p.sem.Release(1)
}

// Close 关闭连接池：停止维护协程并断开空闲连接。
// 仍被检出的连接在归还时关闭。
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	free := p.free
	p.free = nil
	p.numOpen -= len(free)
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.logger.Info("closing connection pool", zap.Int("idle", len(free)))

	var errs []error
	for _, c := range free {
		if err := c.disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🏥 后台维护
// =============================================================================

func (p *Pool) maintenanceLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.maintain(time.Now())
		}
	}
}

// maintain 断开空闲超过 MaxIdleTime 的物理句柄并上报统计
func (p *Pool) maintain(now time.Time) {
	var stale []*Handle

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.config.MaxIdleTime > 0 {
		for _, c := range p.free {
			if now.Sub(c.lastUsedAt) < p.config.MaxIdleTime {
				continue
			}
			if c.writeHandle != nil {
				stale = append(stale, c.writeHandle)
				c.writeHandle = nil
			}
			if c.readHandle != nil {
				stale = append(stale, c.readHandle)
				c.readHandle = nil
			}
		}
	}
	p.mu.Unlock()

	for _, h := range stale {
		if err := h.Close(); err != nil {
			p.logger.Debug("close idle handle", zap.String("target", h.Target().Name), zap.Error(err))
		}
	}
	p.idleClosed.Add(int64(len(stale)))

	stats := p.Stats()
	p.recorder.RecordPool(stats.Open, stats.Idle, stats.InUse)
	p.logger.Debug("pool maintenance",
		zap.Int("open", stats.Open),
		zap.Int("idle", stats.Idle),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle_handles_closed", len(stale)),
	)
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// PoolStats 连接池统计信息
type PoolStats struct {
	MaxConnections    int           `json:"max_connections"`
	Open              int           `json:"open"`
	Idle              int           `json:"idle"`
	InUse             int           `json:"in_use"`
	Checkouts         int64         `json:"checkouts"`
	WaitDuration      time.Duration `json:"wait_duration"`
	Evictions         int64         `json:"evictions"`
	IdleHandlesClosed int64         `json:"idle_handles_closed"`
}

// Stats 返回当前统计
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	open, idle := p.numOpen, len(p.free)
	p.mu.Unlock()

	return PoolStats{
		MaxConnections:    p.config.MaxConnections,
		Open:              open,
		Idle:              idle,
		InUse:             open - idle,
		Checkouts:         p.checkouts.Load(),
		WaitDuration:      time.Duration(p.waitDuration.Load()),
		Evictions:         p.evictions.Load(),
		IdleHandlesClosed: p.idleClosed.Load(),
	}
}
