// Package config 提供 dbmux 的配置管理功能。
//
// 支持从默认值、YAML 文件和环境变量（前缀 DBMUX）分层加载配置，
// 并在启动前校验连接目标与连接池参数。
package config
