// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 Prometheus /metrics 端点的 HTTP 服务器生命周期管理。

# 概述

MetricsServer 封装 net/http.Server 与 promhttp 处理器，支持非阻塞
启动、优雅关闭与异步错误传播。dbmux bench 命令在压测期间通过它
暴露连接池与查询指标。

# 核心类型

  - MetricsServer：持有 http.Server、net.Listener 与错误通道。
  - Config：监听地址、读取超时与优雅关闭超时。

# 主要能力

  - 可注入 prometheus.Gatherer，测试时使用独立注册表
  - Addr 返回实际监听地址，":0" 随机端口可用
  - Shutdown 幂等
*/
package server
