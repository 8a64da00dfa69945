// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 连接层指标收集器，满足 database.Recorder
type Collector struct {
	// 查询指标
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	// 连接池指标
	checkoutWait     prometheus.Histogram
	evictionsTotal   prometheus.Counter
	reconnectsTotal  *prometheus.CounterVec
	connectionsOpen  prometheus.Gauge
	connectionsIdle  prometheus.Gauge
	connectionsInUse prometheus.Gauge

	// 事务指标
	transactionsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定 registerer
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 查询指标
	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of physical database calls",
		},
		[]string{"operation", "role", "status"},
	)

	c.queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Physical database call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation", "role"},
	)

	// 连接池指标
	c.checkoutWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_pool_checkout_wait_seconds",
			Help:      "Time spent waiting for a pooled connection",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 10, 6),
		},
	)

	c.evictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_pool_evictions_total",
			Help:      "Total number of evicted pool slots",
		},
	)

	c.reconnectsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_reconnects_total",
			Help:      "Total number of reconnect attempts",
		},
		[]string{"role", "status"},
	)

	c.connectionsOpen = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections_open",
			Help:      "Number of pool slots",
		},
	)

	c.connectionsIdle = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections_idle",
			Help:      "Number of idle pool slots",
		},
	)

	c.connectionsInUse = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections_in_use",
			Help:      "Number of checked out pool slots",
		},
	)

	// 事务指标
	c.transactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_transactions_total",
			Help:      "Total number of transaction events",
		},
		[]string{"event"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 📝 记录方法
// =============================================================================

// RecordQuery 记录一次物理调用
func (c *Collector) RecordQuery(operation, role string, d time.Duration, failed bool) {
	c.queriesTotal.WithLabelValues(operation, role, status(failed)).Inc()
	c.queryDuration.WithLabelValues(operation, role).Observe(d.Seconds())
}

// RecordCheckout 记录检出等待时间
func (c *Collector) RecordCheckout(wait time.Duration) {
	c.checkoutWait.Observe(wait.Seconds())
}

// RecordEviction 记录一次驱逐
func (c *Collector) RecordEviction() {
	c.evictionsTotal.Inc()
}

// RecordReconnect 记录一次重连
func (c *Collector) RecordReconnect(role string, ok bool) {
	c.reconnectsTotal.WithLabelValues(role, status(!ok)).Inc()
}

// RecordTransaction 记录 begin/commit/rollback
func (c *Collector) RecordTransaction(event string) {
	c.transactionsTotal.WithLabelValues(event).Inc()
}

// RecordPool 记录连接池快照
func (c *Collector) RecordPool(open, idle, inUse int) {
	c.connectionsOpen.Set(float64(open))
	c.connectionsIdle.Set(float64(idle))
	c.connectionsInUse.Set(float64(inUse))
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}
