package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PoolStatsFunc reports current pool occupancy.
type PoolStatsFunc func() (open, idle, inUse int)

// ObservePool registers an asynchronous gauge "db.pool.connections" with a
// "state" attribute (open, idle, in_use). Unregister the returned
// registration before the pool is closed.
func ObservePool(meter metric.Meter, stats PoolStatsFunc) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("Pooled connection slots by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool gauge: %w", err)
	}

	open := metric.WithAttributes(attribute.String("state", "open"))
	idle := metric.WithAttributes(attribute.String("state", "idle"))
	inUse := metric.WithAttributes(attribute.String("state", "in_use"))

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		nOpen, nIdle, nInUse := stats()
		o.ObserveInt64(gauge, int64(nOpen), open)
		o.ObserveInt64(gauge, int64(nIdle), idle)
		o.ObserveInt64(gauge, int64(nInUse), inUse)
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("register pool callback: %w", err)
	}
	return reg, nil
}
