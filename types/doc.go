// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 dbmux 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 database、config、cmd
等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 Query、Retryable、Cause
  - NewQueryFailure   — 未被透明恢复的物理执行错误，携带原始驱动消息

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsQueryFailure / IsRetryable / GetErrorCode
*/
package types
