// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 dbmux 命令行程序入口。

# 概述

cmd/dbmux 基于 database 连接池提供运维与调试命令：目标连通性检查、
读写分离查询、事务内执行以及并发压测。程序支持 YAML 配置文件加载、
环境变量覆盖、结构化日志（zap）、OpenTelemetry 链路与
Prometheus 指标采集。

# 子命令

  - ping     — 逐个连接写/读目标并 Ping，任一失败则退出码非零
  - query    — 通过游标流式读取结果，按 JSON 行输出
  - exec     — 执行写语句，--tx 时包裹在可重试事务中
  - bench    — errgroup 并发会话压测，输出分位延迟与池统计，
    启用 metrics 时在压测期间暴露 /metrics
  - migrate  — 基于 golang-migrate 的目录式 schema 迁移（up/down/status/goto/force/reset）
  - version  — 版本信息（Version、BuildTime、GitCommit 通过 ldflags 注入）
*/
package main
