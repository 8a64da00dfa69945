// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供按请求隔离事务状态、读写分离的逻辑连接池。

# 概述

逻辑连接（Connection）复用在有界连接池（Pool）之上，每个连接最多持有
一个写句柄和一个读句柄，句柄在首次使用时才通过 Descriptor 的 Connector
建立。一次逻辑请求对应一个 Session，Session 持有该请求的事务状态
（TxState），连接在检出时绑定到 Session，嵌套事务因此在同一请求内共享、
跨请求隔离。

# 核心类型

  - Pool：连接池，信号量限制检出数量，LIFO 复用空闲连接，后台断开
    长时间空闲的物理句柄。
  - Session：逻辑请求上下文，Connection() 在事务中返回锚点连接。
  - Connection：Select/Cursor/Insert/Update/Delete/Statement/Unprepared，
    BeginTransaction/Commit/RollBack/Transaction，Release/Reconnect。
  - Handle：独占的物理连接（*sql.Conn 与可选的 *sql.Tx）。
  - Descriptor / Connector：写/读目标列表、表前缀、取值方式与建连能力。
  - Cursor：绑定到打开语句的惰性结果集。

# 归还规则

非事务语句执行结束（成功或最终失败）后立即归还连接；事务锚点在最外层
Commit/RollBack 之前保持检出，最外层结束时强制归还。归还后的连接不能
再使用，调用会返回 ErrConnectionReleased。

# 失败恢复

物理调用失败时，若是首次尝试、不在事务中且 ReconnectPolicy 允许，则重连
同一角色的句柄并重试一次；重连失败时驱逐该连接槽。其余失败包装为
types.ErrQueryFailed 返回，原始错误可通过 errors.Is/As 取得。
*/
package database
