// =============================================================================
// 📦 dbmux 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database:  DefaultDatabaseConfig(),
		Pool:      DefaultPoolConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:    "mysql",
		Write:     []string{"root:@tcp(localhost:3306)/dbmux?parseTime=true"},
		Read:      nil,
		Prefix:    "",
		FetchMode: "assoc",
		Grammar:   "",
		Reconnect: ReconnectConfig{
			Policy:        "never",
			RatePerSecond: 0,
			Burst:         1,
		},
	}
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConnections:      1,
		MaxConnections:      10,
		WaitTimeout:         3 * time.Second,
		MaxIdleTime:         60 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		MaxOpenPerTarget:    0,
		ConnMaxLifetime:     time.Hour,
		ConnectTimeout:      5 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dbmux",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "dbmux",
		Addr:      ":9091",
	}
}
