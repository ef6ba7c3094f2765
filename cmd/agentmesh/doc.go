// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentMesh 服务端程序入口。

# 概述

cmd/agentmesh 是 AgentMesh 的可执行入口，提供注册表、发现与协作的
HTTP API、健康检查和版本查询等子命令。程序支持 YAML 配置文件与
AGENTMESH_* 环境变量、结构化日志（zap）、OpenTelemetry 追踪以及
Prometheus 指标采集。

# 核心类型

  - Server：主服务器，组装广播通道、注册表、编排器与 HTTP/Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 广播驱动：memory（单进程）或 redis（Pub/Sub，多进程共享，附带注册表镜像）
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、RateLimiter（基于 IP）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号 → 关闭 HTTP → 关闭发现事件流 → 停止编排器 →
    关闭广播通道与 Redis → 关闭 Metrics
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
