// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 基于 golang-migrate 提供目录式的数据库 schema 迁移。

# 概述

迁移文件按 <版本>_<名称>.up.sql / .down.sql 命名放在一个目录中，
由 iofs 来源读取，在调用方打开的 *sql.DB 上执行。支持 PostgreSQL
（pgx）、MySQL 与 SQLite 三种方言；SQLite 走纯 Go 驱动打开的句柄。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info 接口
  - DefaultMigrator：golang-migrate 实现，Close 同时关闭传入的 *sql.DB
  - MigrationStatus / MigrationInfo：逐文件状态与进度汇总

# 主要能力

  - ParseDatabaseType 将连接驱动名（pgx、mysql、sqlite）映射为方言
  - 版本表名可配置，默认 schema_migrations
*/
package migration
