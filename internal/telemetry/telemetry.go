// =============================================================================
// 📡 dbmux 遥测装配
// =============================================================================
// 按配置建立 TracerProvider 与 MeterProvider，资源上携带服务名、版本以及
// 连接池所连的数据库类型（db.system）。未启用时不创建任何导出器，
// 访问器退回到全局 provider。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/config"
)

// InstrumentationName 本模块的 tracer / meter 作用域名
const InstrumentationName = "github.com/BaSui01/dbmux"

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 遥测禁用时两者都为 nil，访问器返回全局 provider，Shutdown 无操作。
type Providers struct {
	tp  *sdktrace.TracerProvider
	mp  *sdkmetric.MeterProvider
	res *resource.Resource
}

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
}

// Option 替换默认的 OTLP gRPC 导出
type Option func(*options)

// WithSpanExporter 用给定导出器替代 OTLP trace 导出
func WithSpanExporter(e sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = e }
}

// WithMetricReader 用给定 Reader 替代 OTLP 周期导出
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// Init 根据 cfg.Telemetry 初始化 SDK；cfg.Database.Driver 决定资源上的 db.system。
func Init(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Providers, error) {
	tcfg := cfg.Telemetry
	if !tcfg.Enabled {
		logger.Info("telemetry disabled, using global providers")
		return &Providers{}, nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(tcfg.ServiceName, cfg.Database.Driver)...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	spanExporter := o.spanExporter
	if spanExporter == nil {
		spanExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(tcfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	reader := o.metricReader
	if reader == nil {
		metricExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(tcfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			_ = spanExporter.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(metricExporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tcfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", tcfg.OTLPEndpoint),
		zap.String("service_name", tcfg.ServiceName),
		zap.String("db_system", dbSystem(cfg.Database.Driver)),
		zap.Float64("sample_rate", tcfg.SampleRate),
	)
	return &Providers{tp: tp, mp: mp, res: res}, nil
}

// TracerProvider 交给 database.WithTracerProvider
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p == nil || p.tp == nil {
		return otel.GetTracerProvider()
	}
	return p.tp
}

// Meter 连接池 gauge 使用的 meter
func (p *Providers) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return otel.GetMeterProvider().Meter(InstrumentationName)
	}
	return p.mp.Meter(InstrumentationName)
}

// Resource 启用时的资源描述，禁用时为 nil
func (p *Providers) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

// Shutdown 刷新并关闭导出器；对 nil 或禁用的 Providers 安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func resourceAttributes(serviceName, driver string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(buildVersion()),
		semconv.DBSystemKey.String(dbSystem(driver)),
	}
}

// dbSystem 把 database/sql 驱动名映射到 db.system 取值
func dbSystem(driver string) string {
	switch driver {
	case "pgx", "postgres", "postgresql":
		return "postgresql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "":
		return "other_sql"
	default:
		return driver
	}
}

// buildVersion 取模块版本，开发构建返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
