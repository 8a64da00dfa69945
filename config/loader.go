// =============================================================================
// 📦 dbmux 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("dbmux.yaml").
//	    WithEnvPrefix("DBMUX").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 dbmux 的完整配置结构
type Config struct {
	// Database 连接目标配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Pool 连接池配置
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// DatabaseConfig 数据库描述配置
type DatabaseConfig struct {
	// 驱动名: mysql, pgx, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 写目标 DSN 列表（始终使用第一个）
	Write []string `yaml:"write" env:"WRITE"`
	// 读目标 DSN 列表，为空时读请求落到写目标
	Read []string `yaml:"read" env:"READ"`
	// 表前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// 结果集取值模式: assoc, raw
	FetchMode string `yaml:"fetch_mode" env:"FETCH_MODE"`
	// 方言语法，为空时按驱动推断: mysql, postgres, sqlite, plain
	Grammar string `yaml:"grammar" env:"GRAMMAR"`
	// 断线重连策略
	Reconnect ReconnectConfig `yaml:"reconnect" env:"RECONNECT"`
}

// ReconnectConfig 断线重连策略配置
type ReconnectConfig struct {
	// 策略: never, lost_connection
	Policy string `yaml:"policy" env:"POLICY"`
	// 每秒允许的重连次数，0 表示不限流
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 令牌桶容量
	Burst int `yaml:"burst" env:"BURST"`
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// 启动时预建的连接槽数量（不做物理 I/O）
	MinConnections int `yaml:"min_connections" env:"MIN_CONNECTIONS"`
	// 连接槽上限
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// 等待空闲连接的超时，0 表示只受 ctx 约束
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
	// 空闲超过该时长的连接断开物理句柄
	MaxIdleTime time.Duration `yaml:"max_idle_time" env:"MAX_IDLE_TIME"`
	// 后台维护间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 单个目标底层 sql.DB 的最大打开连接数
	MaxOpenPerTarget int `yaml:"max_open_per_target" env:"MAX_OPEN_PER_TARGET"`
	// 底层物理连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 建立物理连接的超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// /metrics 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DBMUX",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔；DSN 中的逗号请改用 YAML 配置
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Driver == "" {
		errs = append(errs, "database driver is required")
	}
	if len(c.Database.Write) == 0 {
		errs = append(errs, "at least one write target is required")
	}
	switch c.Database.FetchMode {
	case "", "assoc", "raw":
	default:
		errs = append(errs, fmt.Sprintf("unknown fetch_mode %q", c.Database.FetchMode))
	}
	switch c.Database.Grammar {
	case "", "mysql", "postgres", "sqlite", "plain":
	default:
		errs = append(errs, fmt.Sprintf("unknown grammar %q", c.Database.Grammar))
	}
	switch c.Database.Reconnect.Policy {
	case "", "never", "lost_connection":
	default:
		errs = append(errs, fmt.Sprintf("unknown reconnect policy %q", c.Database.Reconnect.Policy))
	}
	if c.Database.Reconnect.RatePerSecond < 0 {
		errs = append(errs, "reconnect rate_per_second must not be negative")
	}

	if c.Pool.MaxConnections <= 0 {
		errs = append(errs, "max_connections must be positive")
	}
	if c.Pool.MinConnections < 0 {
		errs = append(errs, "min_connections must not be negative")
	}
	if c.Pool.MinConnections > c.Pool.MaxConnections {
		errs = append(errs, "min_connections must not exceed max_connections")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
