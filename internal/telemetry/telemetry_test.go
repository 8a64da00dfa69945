package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/dbmux/config"
)

// restoreGlobals 测试结束后恢复全局 provider 与 propagator
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig(driver string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = driver
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ServiceName = "dbmux-test"
	cfg.Telemetry.SampleRate = 1
	return cfg
}

func initInMemory(t *testing.T, driver string) (*Providers, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	restoreGlobals(t)

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	p, err := Init(enabledConfig(driver), zaptest.NewLogger(t), WithSpanExporter(spans), WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, spans, reader
}

func TestInit_DisabledFallsBackToGlobals(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	cfg := config.DefaultConfig()
	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Same(t, before, otel.GetTracerProvider(), "disabled init leaves globals alone")
	assert.Equal(t, before, p.TracerProvider())
	assert.NotNil(t, p.Meter())
	assert.Nil(t, p.Resource())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_NilIsUsable(t *testing.T) {
	var p *Providers
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.Meter())
	assert.Nil(t, p.Resource())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_ResourceCarriesDBSystem(t *testing.T) {
	for driver, want := range map[string]string{
		"mysql":  "mysql",
		"pgx":    "postgresql",
		"sqlite": "sqlite",
	} {
		t.Run(driver, func(t *testing.T) {
			p, _, _ := initInMemory(t, driver)

			res := p.Resource()
			require.NotNil(t, res)
			got, ok := res.Set().Value(attribute.Key("db.system"))
			require.True(t, ok)
			assert.Equal(t, want, got.AsString())

			name, _ := res.Set().Value(attribute.Key("service.name"))
			assert.Equal(t, "dbmux-test", name.AsString())
		})
	}
}

func TestInit_TracerProviderExportsSpans(t *testing.T) {
	p, spans, _ := initInMemory(t, "mysql")

	assert.Same(t, p.TracerProvider(), otel.GetTracerProvider())
	assert.Subset(t, otel.GetTextMapPropagator().Fields(), []string{"traceparent", "baggage"})

	_, span := p.TracerProvider().Tracer(InstrumentationName).Start(context.Background(), "db.select")
	span.End()
	require.NoError(t, p.tp.ForceFlush(context.Background()))

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "db.select", got[0].Name)
	system, _ := got[0].Resource.Set().Value(attribute.Key("db.system"))
	assert.Equal(t, "mysql", system.AsString())
}

func TestInit_MeterFeedsPoolGauge(t *testing.T) {
	p, _, reader := initInMemory(t, "pgx")

	reg, err := ObservePool(p.Meter(), func() (int, int, int) { return 2, 2, 0 })
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Unregister() })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	system, _ := rm.Resource.Set().Value(attribute.Key("db.system"))
	assert.Equal(t, "postgresql", system.AsString())

	var scopes []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "db.pool.connections" {
				scopes = append(scopes, sm.Scope.Name)
			}
		}
	}
	assert.Equal(t, []string{InstrumentationName}, scopes)
}

func TestDBSystem(t *testing.T) {
	assert.Equal(t, "postgresql", dbSystem("postgres"))
	assert.Equal(t, "sqlite", dbSystem("sqlite3"))
	assert.Equal(t, "mssql", dbSystem("mssql"))
	assert.Equal(t, "other_sql", dbSystem(""))
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}
