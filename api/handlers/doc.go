// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentMesh HTTP API 的请求处理器实现。

# 概述

handlers 包把 orchestrator 门面暴露为 JSON 接口：注册表管理、
发现、能力查询、任务协作、Agent 消息、网络健康与会话管理，
另有基于 WebSocket 的发现消息实时流。

# 核心类型

  - AgentHandler：Agent 注册、查询、注销与心跳
  - DiscoveryHandler：发现快照与 /api/v1/discovery/stream 实时流
  - CoordinationHandler：能力查询、协作执行、消息发送、网络健康、会话
  - HealthHandler：存活探针（/healthz）与就绪探针（/readyz），
    就绪包含存活扫描、广播通道回环与网络健康
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码
  - CheckFunc：可插拔就绪检查（LivenessCheck、BroadcastCheck、Redis Ping）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteFailure / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 协作失败时以错误码对应的状态码返回完整结果
*/
package handlers
