// Package config 提供 AgentMesh 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，加载时统一验证。
// 协作相关配置（核心 Agent ID、心跳间隔、发现超时、质量阈值）
// 在启动后视为只读常量。
package config
