// =============================================================================
// dbmux 命令行入口
// =============================================================================
// 基于连接池的数据库访问工具，覆盖连通性检查、查询、执行与压测
//
// 使用方法:
//
//	dbmux ping --config dbmux.yaml            # 检查读写目标连通性
//	dbmux query --sql "select 1"              # 执行查询并输出 JSON 行
//	dbmux exec --sql "delete from t where id = ?" --arg 1
//	dbmux bench --sql "select 1" --workers 8  # 并发压测并暴露 /metrics
//	dbmux migrate up --dir ./migrations       # 应用 schema 迁移
//	dbmux version                             # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/dbmux/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ping":
		err = runPing(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "exec":
		err = runExec(os.Args[2:])
	case "bench":
		err = runBench(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("dbmux %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`dbmux - pooled read/write database connection layer

Usage:
  dbmux <command> [options]

Commands:
  ping      Check connectivity of every write and read target
  query     Run a select statement and print rows as JSON lines
  exec      Run a write statement and print affected rows
  bench     Run a statement concurrently and expose /metrics
  migrate   Schema migration commands (see 'dbmux migrate help')
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'query' / 'exec':
  --sql <stmt>      Statement to run
  --arg <value>     Positional binding, repeatable
  --write           (query) Read from the write target
  --tx              (exec) Wrap the statement in a transaction

Options for 'bench':
  --sql <stmt>      Statement to run (select)
  --workers <n>     Concurrent sessions (default 4)
  --requests <n>    Statements per worker (default 100)

Examples:
  dbmux ping --config /etc/dbmux/config.yaml
  dbmux query --sql "select * from users where id = ?" --arg 7
  dbmux exec --tx --sql "update users set name = ? where id = ?" --arg bob --arg 7
  dbmux bench --sql "select 1" --workers 16 --requests 1000
  dbmux version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
