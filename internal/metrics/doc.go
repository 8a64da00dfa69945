// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的连接层指标采集能力，覆盖
物理调用、连接池与事务三大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，默认注册到全局 Registry，也可传入自定义 Registerer。
所有指标按 namespace 隔离。Collector 满足 database.Recorder，
通过 database.WithRecorder 接入连接池。

# 主要能力

  - 查询指标：物理调用总数与耗时，按 operation/role/status 分组。
  - 连接池指标：检出等待时间、驱逐次数、重连次数（按 role/status），
    以及 open/idle/in_use 连接数 Gauge。
  - 事务指标：begin/commit/rollback 事件计数。
*/
package metrics
