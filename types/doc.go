// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentMesh 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 agent、api、cmd 等上层模块
提供统一的错误码与 context 传播工具。

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - AsError / IsErrorCode / GetErrorCode：沿错误链提取错误码
  - WithTraceID / WithRequestID / WithSessionID / WithAgentID：context 传播
*/
package types
