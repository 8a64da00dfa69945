package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/dbmux/config"
	"github.com/BaSui01/dbmux/database"
	"github.com/BaSui01/dbmux/internal/metrics"
	"github.com/BaSui01/dbmux/internal/telemetry"
)

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// runtime 聚合一次命令执行所需的配置、日志、遥测与连接池
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers
	connector *database.SQLConnector
	pool      *database.Pool
	poolObs   metric.Registration
}

// loadConfig 默认值 → YAML → 环境变量，然后校验
func loadConfig(configPath string) (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openRuntime(configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Log)
	logger.Debug("dbmux starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}

	connector := database.NewSQLConnector(cfg.Pool, logger)
	descriptor, err := database.DescriptorFromConfig(cfg.Database, connector)
	if err != nil {
		_ = connector.Close()
		return nil, err
	}

	opts := []database.Option{
		database.WithLogger(logger),
		database.WithReconnectPolicy(database.ReconnectPolicyFromConfig(cfg.Database.Reconnect)),
		database.WithTracerProvider(providers.TracerProvider()),
	}
	if cfg.Database.Grammar != "" {
		opts = append(opts, database.WithGrammar(cfg.Database.Grammar))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, database.WithRecorder(metrics.NewCollector(cfg.Metrics.Namespace, logger)))
	}

	pool, err := database.NewPool(descriptor, cfg.Pool, opts...)
	if err != nil {
		_ = connector.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
		connector: connector,
		pool:      pool,
	}

	rt.poolObs, err = telemetry.ObservePool(providers.Meter(), func() (int, int, int) {
		s := pool.Stats()
		return s.Open, s.Idle, s.InUse
	})
	if err != nil {
		logger.Warn("failed to observe pool", zap.Error(err))
	}
	return rt, nil
}

// Close 依次关闭观测回调、连接池、底层 sql.DB 与遥测
func (rt *runtime) Close() error {
	var errs []error
	if rt.poolObs != nil {
		errs = append(errs, rt.poolObs.Unregister())
	}
	errs = append(errs, rt.pool.Close(), rt.connector.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, rt.providers.Shutdown(ctx))

	_ = rt.logger.Sync()
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 参数
// =============================================================================

// argList 可重复的 --arg 绑定参数
type argList []string

var _ flag.Value = (*argList)(nil)

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

// bindings 转为位置绑定，字面量 NULL 绑定为空值
func (a argList) bindings() []any {
	out := make([]any, len(a))
	for i, v := range a {
		if strings.EqualFold(v, "null") {
			continue
		}
		out[i] = v
	}
	return out
}
